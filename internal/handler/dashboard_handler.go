package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/groupdash/internal/middleware"
	"github.com/hitoshi/groupdash/internal/model"
)

// SidebarReader はサイドバーの読み取りインターフェース。
type SidebarReader interface {
	Get(ctx context.Context) (*model.SidebarDocument, error)
}

// DashboardHandler はメンバー向けダッシュボードのHTTPハンドラー。
type DashboardHandler struct {
	sidebar     SidebarReader
	calendarURL string
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(sidebar SidebarReader, calendarURL string) *DashboardHandler {
	return &DashboardHandler{
		sidebar:     sidebar,
		calendarURL: calendarURL,
	}
}

// dashboardResponse はダッシュボードのレスポンス。
type dashboardResponse struct {
	CalendarURL string                 `json:"calendarUrl"`
	AccessLevel model.AccessLevel      `json:"accessLevel"`
	Sidebar     *model.SidebarDocument `json:"sidebar"`
}

// Dashboard はカレンダー埋め込みURLとサイドバーをまとめて返す。
// サイドバーが未作成の場合は sidebar: null になる。
// GET /api/dashboard
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	doc, err := h.sidebar.Get(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		CalendarURL: h.calendarURL,
		AccessLevel: middleware.AccessLevelFromContext(r.Context()),
		Sidebar:     doc,
	})
}

// Sidebar はサイドバードキュメントを返す。未作成の場合は404。
// GET /api/sidebar
func (h *DashboardHandler) Sidebar(w http.ResponseWriter, r *http.Request) {
	doc, err := h.sidebar.Get(r.Context())
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

const sidebarIdent = "sidebar:data"
