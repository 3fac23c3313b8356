package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/groupdash/internal/linkcheck"
	"github.com/hitoshi/groupdash/internal/model"
	"github.com/hitoshi/groupdash/internal/sidebar"
)

// SidebarEditorInterface はサイドバー編集ハンドラーが必要とするインターフェース。
type SidebarEditorInterface interface {
	Get(ctx context.Context) (*model.SidebarDocument, error)
	Replace(ctx context.Context, doc *model.SidebarDocument) error
	Initialize(ctx context.Context) (bool, error)
	AddCategory(ctx context.Context, category model.SidebarCategory) error
	UpdateCategory(ctx context.Context, categoryID string, update sidebar.CategoryUpdate) error
	DeleteCategory(ctx context.Context, categoryID string) error
	AddLink(ctx context.Context, categoryID string, link model.SidebarLink) error
	UpdateLink(ctx context.Context, categoryID, linkID string, update sidebar.LinkUpdate) error
	DeleteLink(ctx context.Context, categoryID, linkID string) error
}

// LinkCheckerInterface はリンク死活確認のインターフェース。
type LinkCheckerInterface interface {
	Check(ctx context.Context, doc *model.SidebarDocument) linkcheck.Report
}

// SidebarHandler は管理者向けサイドバー編集のHTTPハンドラー。
type SidebarHandler struct {
	store   SidebarEditorInterface
	checker LinkCheckerInterface
}

// NewSidebarHandler はSidebarHandlerを生成する。
func NewSidebarHandler(store SidebarEditorInterface, checker LinkCheckerInterface) *SidebarHandler {
	return &SidebarHandler{
		store:   store,
		checker: checker,
	}
}

type replaceSidebarRequest struct {
	Categories  []model.SidebarCategory `json:"categories" validate:"required"`
	Version     int                     `json:"version" validate:"gte=0"`
	LastUpdated *time.Time              `json:"lastUpdated,omitempty"`
}

type linkRequest struct {
	ID          string `json:"id" validate:"omitempty,max=64"`
	Title       string `json:"title" validate:"required,max=200"`
	URL         string `json:"url" validate:"required,max=2048"`
	Icon        string `json:"icon" validate:"max=64"`
	Description string `json:"description" validate:"max=500"`
}

type categoryRequest struct {
	ID        string        `json:"id" validate:"omitempty,max=64"`
	Title     string        `json:"title" validate:"required,max=200"`
	Icon      string        `json:"icon" validate:"max=64"`
	Collapsed bool          `json:"collapsed"`
	Links     []linkRequest `json:"links" validate:"dive"`
}

type categoryPatchRequest struct {
	Title     *string `json:"title" validate:"omitempty,max=200"`
	Icon      *string `json:"icon" validate:"omitempty,max=64"`
	Collapsed *bool   `json:"collapsed"`
}

type linkPatchRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	URL         *string `json:"url" validate:"omitempty,max=2048"`
	Icon        *string `json:"icon" validate:"omitempty,max=64"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

type initializeResponse struct {
	Created bool                   `json:"created"`
	Sidebar *model.SidebarDocument `json:"sidebar"`
}

func (l linkRequest) toModel() model.SidebarLink {
	id := l.ID
	if id == "" {
		id = sidebar.Slugify(l.Title)
	}
	return model.SidebarLink{
		ID:          id,
		Title:       l.Title,
		URL:         l.URL,
		Icon:        l.Icon,
		Description: l.Description,
	}
}

func (c categoryRequest) toModel() model.SidebarCategory {
	id := c.ID
	if id == "" {
		id = sidebar.Slugify(c.Title)
	}
	links := make([]model.SidebarLink, 0, len(c.Links))
	for _, l := range c.Links {
		links = append(links, l.toModel())
	}
	return model.SidebarCategory{
		ID:        id,
		Title:     c.Title,
		Icon:      c.Icon,
		Collapsed: c.Collapsed,
		Links:     links,
	}
}

// GetSidebar は編集用にサイドバードキュメントを返す。未作成の場合は404。
// GET /api/admin/sidebar
func (h *SidebarHandler) GetSidebar(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Get(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if doc == nil {
		handleServiceError(w, model.NewNotFoundError(sidebarIdent, "Sidebar data not found"))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ReplaceSidebar はドキュメント全体を置き換える。
// 送信されたversionが現在のversionと異なる場合は409。
// PUT /api/admin/sidebar
func (h *SidebarHandler) ReplaceSidebar(w http.ResponseWriter, r *http.Request) {
	var req replaceSidebarRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	err := h.store.Replace(r.Context(), &model.SidebarDocument{
		Categories: req.Categories,
		Version:    req.Version,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.respondWithDocument(w, r, http.StatusOK)
}

// Initialize は既定のサイドバーを作成する。既に存在する場合は何もしない。
// POST /api/admin/sidebar/initialize
func (h *SidebarHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	created, err := h.store.Initialize(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	doc, err := h.store.Get(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, initializeResponse{Created: created, Sidebar: doc})
}

// AddCategory はカテゴリを追加する。idが省略された場合はタイトルから生成する。
// POST /api/admin/sidebar/categories
func (h *SidebarHandler) AddCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.store.AddCategory(r.Context(), req.toModel()); err != nil {
		handleServiceError(w, err)
		return
	}
	h.respondWithDocument(w, r, http.StatusCreated)
}

// UpdateCategory はカテゴリのタイトル・アイコン・折りたたみ状態を更新する。
// PATCH /api/admin/sidebar/categories/{categoryID}
func (h *SidebarHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathParam(w, r, "categoryID")
	if !ok {
		return
	}
	var req categoryPatchRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	err := h.store.UpdateCategory(r.Context(), categoryID, sidebar.CategoryUpdate{
		Title:     req.Title,
		Icon:      req.Icon,
		Collapsed: req.Collapsed,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.respondWithDocument(w, r, http.StatusOK)
}

// DeleteCategory はカテゴリを配下のリンクごと削除する。
// DELETE /api/admin/sidebar/categories/{categoryID}
func (h *SidebarHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathParam(w, r, "categoryID")
	if !ok {
		return
	}
	if err := h.store.DeleteCategory(r.Context(), categoryID); err != nil {
		handleServiceError(w, err)
		return
	}
	h.respondWithDocument(w, r, http.StatusOK)
}

// AddLink はカテゴリ末尾にリンクを追加する。
// POST /api/admin/sidebar/categories/{categoryID}/links
func (h *SidebarHandler) AddLink(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := pathParam(w, r, "categoryID")
	if !ok {
		return
	}
	var req linkRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.store.AddLink(r.Context(), categoryID, req.toModel()); err != nil {
		handleServiceError(w, err)
		return
	}
	h.respondWithDocument(w, r, http.StatusCreated)
}

// UpdateLink はリンクを部分更新する。
// PATCH /api/admin/sidebar/categories/{categoryID}/links/{linkID}
func (h *SidebarHandler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	categoryID, linkID, ok := linkPathParams(w, r)
	if !ok {
		return
	}
	var req linkPatchRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	err := h.store.UpdateLink(r.Context(), categoryID, linkID, sidebar.LinkUpdate{
		Title:       req.Title,
		URL:         req.URL,
		Icon:        req.Icon,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.respondWithDocument(w, r, http.StatusOK)
}

// DeleteLink はリンクを削除する。
// DELETE /api/admin/sidebar/categories/{categoryID}/links/{linkID}
func (h *SidebarHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	categoryID, linkID, ok := linkPathParams(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteLink(r.Context(), categoryID, linkID); err != nil {
		handleServiceError(w, err)
		return
	}
	h.respondWithDocument(w, r, http.StatusOK)
}

// CheckLinks はサイドバーの外部リンクを順に確認し、結果を返す。
// POST /api/admin/sidebar/links/check
func (h *SidebarHandler) CheckLinks(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Get(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if doc == nil {
		handleServiceError(w, model.NewNotFoundError(sidebarIdent, "Sidebar data not found"))
		return
	}
	writeJSON(w, http.StatusOK, h.checker.Check(r.Context(), doc))
}

// respondWithDocument は変更後のドキュメントを読み直して返す。
func (h *SidebarHandler) respondWithDocument(w http.ResponseWriter, r *http.Request, status int) {
	doc, err := h.store.Get(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, status, doc)
}

func linkPathParams(w http.ResponseWriter, r *http.Request) (categoryID, linkID string, ok bool) {
	if categoryID, ok = pathParam(w, r, "categoryID"); !ok {
		return "", "", false
	}
	if linkID, ok = pathParam(w, r, "linkID"); !ok {
		return "", "", false
	}
	return categoryID, linkID, true
}
