package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/groupdash/internal/middleware"
	"github.com/hitoshi/groupdash/internal/model"
	"github.com/hitoshi/groupdash/internal/user"
)

// UserDirectoryInterface はユーザー管理ハンドラーが必要とするインターフェース。
type UserDirectoryInterface interface {
	List(ctx context.Context) ([]model.User, error)
	Add(ctx context.Context, email string, level model.AccessLevel) error
	SetAccessLevel(ctx context.Context, email string, level model.AccessLevel) error
	Delete(ctx context.Context, email string) error
	AddToSet(ctx context.Context, email string) error
	Reconcile(ctx context.Context) (user.ReconcileReport, error)
}

// UserHandler は管理者向けユーザー管理のHTTPハンドラー。
type UserHandler struct {
	dir UserDirectoryInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(dir UserDirectoryInterface) *UserHandler {
	return &UserHandler{dir: dir}
}

type addUserRequest struct {
	Email       string            `json:"email" validate:"required,email,max=254"`
	AccessLevel model.AccessLevel `json:"accessLevel" validate:"required,oneof=admin active retired"`
}

type accessLevelRequest struct {
	AccessLevel model.AccessLevel `json:"accessLevel" validate:"required,oneof=admin active retired"`
}

type setMembershipRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type userListResponse struct {
	Users []model.User `json:"users"`
}

// ListUsers は登録ユーザーをメールアドレス順に返す。
// GET /api/admin/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.dir.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, userListResponse{Users: users})
}

// AddUser はユーザーを新規登録する。既に存在する場合は409。
// POST /api/admin/users
func (h *UserHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	var req addUserRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.dir.Add(r.Context(), req.Email, req.AccessLevel); err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit(r, "user added", req.Email, req.AccessLevel)
	writeJSON(w, http.StatusCreated, model.User{
		Email:       model.NormalizeEmail(req.Email),
		AccessLevel: req.AccessLevel,
	})
}

// SetAccessLevel はユーザーのアクセスレベルを設定する。未登録の場合は作成する。
// PUT /api/admin/users/{email}/access-level
func (h *UserHandler) SetAccessLevel(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}
	var req accessLevelRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.dir.SetAccessLevel(r.Context(), email, req.AccessLevel); err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit(r, "access level changed", email, req.AccessLevel)
	writeJSON(w, http.StatusOK, model.User{
		Email:       model.NormalizeEmail(email),
		AccessLevel: req.AccessLevel,
	})
}

// DeleteUser はユーザーを削除する。存在しない場合も成功扱い。
// DELETE /api/admin/users/{email}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}

	if err := h.dir.Delete(r.Context(), email); err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit(r, "user deleted", email, "")
	w.WriteHeader(http.StatusNoContent)
}

// AddToSet はメールアドレスをユーザー一覧の集合にだけ登録する。
// POST /api/admin/users/set-members
func (h *UserHandler) AddToSet(w http.ResponseWriter, r *http.Request) {
	var req setMembershipRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.dir.AddToSet(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": model.NormalizeEmail(req.Email)})
}

// Reconcile はユーザー一覧の集合とユーザーレコードの不整合を修復する。
// POST /api/admin/users/reconcile
func (h *UserHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.dir.Reconcile(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *UserHandler) audit(r *http.Request, msg, target string, level model.AccessLevel) {
	actor, _ := middleware.EmailFromContext(r.Context())
	attrs := []any{
		slog.String("actor", actor),
		slog.String("target", model.NormalizeEmail(target)),
	}
	if level != "" {
		attrs = append(attrs, slog.String("access_level", string(level)))
	}
	slog.Info(msg, attrs...)
}

// emailParam はパスパラメータのメールアドレスを取り出す。
func emailParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	return pathParam(w, r, "email")
}

// pathParam はパスパラメータをアンエスケープして取り出す。
// %2F などを含むパスではchiがRawPathでルーティングするため、値はエスケープされたまま渡される。
func pathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, key))
	if err != nil || v == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("invalid "+key+" in path"))
		return "", false
	}
	return v, true
}
