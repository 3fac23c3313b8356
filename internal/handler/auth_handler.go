// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/groupdash/internal/access"
	"github.com/hitoshi/groupdash/internal/auth"
	"github.com/hitoshi/groupdash/internal/middleware"
	"github.com/hitoshi/groupdash/internal/model"
)

const (
	oauthStateCookie = "oauth_state"

	// unauthorizedPath はサインインを拒否されたユーザーのリダイレクト先。
	unauthorizedPath = "/unauthorized"
	dashboardPath    = "/dashboard"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	GetCurrentUser(ctx context.Context, email string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	now     func() time.Time
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &AuthHandler{
		service: service,
		config:  config,
		now:     time.Now,
	}
}

// meResponse は /auth/me のレスポンス。
type meResponse struct {
	Email       string            `json:"email"`
	AccessLevel model.AccessLevel `json:"accessLevel"`
	IsAdmin     bool              `json:"isAdmin"`
	CanView     bool              `json:"canView"`
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
//
// 許可リストに無いアドレスは /unauthorized へリダイレクトする。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("state parameter mismatch"))
		return
	}
	h.clearCookie(w, oauthStateCookie, "")

	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("missing authorization code"))
		return
	}

	sess, err := h.service.HandleCallback(r.Context(), code)
	switch {
	case errors.Is(err, auth.ErrNotAllowed):
		http.Redirect(w, r, h.config.BaseURL+unauthorizedPath, http.StatusTemporaryRedirect)
		return
	case errors.Is(err, auth.ErrEmailNotVerified):
		slog.Warn("oauth callback rejected", slog.String("error", err.Error()))
		http.Redirect(w, r, h.config.BaseURL+unauthorizedPath, http.StatusTemporaryRedirect)
		return
	case err != nil:
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	maxAge := int(sess.ExpiresAt.Sub(h.now()).Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.config.BaseURL+dashboardPath, http.StatusTemporaryRedirect)
}

// Logout はセッションCookieを破棄する。
// トークンはサーバー側に保存していないため、Cookieの削除のみ行う。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, middleware.SessionCookieName, h.config.CookieDomain)
	http.Redirect(w, r, h.config.BaseURL+"/", http.StatusSeeOther)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	email := currentEmail(w, r)
	if email == "" {
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), email)
	if errors.Is(err, auth.ErrNotAllowed) {
		middleware.WriteUnauthorized(w)
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		Email:       user.Email,
		AccessLevel: user.AccessLevel,
		IsAdmin:     access.Permits(user.AccessLevel, access.AreaAdmin),
		CanView:     access.Permits(user.AccessLevel, access.AreaGeneral),
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
