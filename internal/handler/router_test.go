package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/hitoshi/groupdash/internal/middleware"
	"github.com/hitoshi/groupdash/internal/model"
)

func newTestRouter(t *testing.T, pingErr error) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		TokenVerifier: mockVerifier{},
		Authorizer: &mockAuthorizer{levels: map[string]model.AccessLevel{
			"admin@example.com":   model.AccessLevelAdmin,
			"active@example.com":  model.AccessLevelActive,
			"retired@example.com": model.AccessLevelRetired,
		}},
		RateLimiter:    rl,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics")) }),
		HealthChecker:  &mockHealthChecker{pingFn: func(context.Context) error { return pingErr }},
		AuthService:    &mockAuthService{getLoginURLFn: func(state string) string { return "https://accounts.example.com/?state=" + state }},
		AuthConfig:     AuthHandlerConfig{BaseURL: "https://club.example.com"},
		Sidebar:        docStore(),
		CalendarURL:    "https://calendar.google.com/calendar/embed?src=club",
		LinkChecker:    &mockLinkChecker{},
		Users:          &mockUserDirectory{},
	})
}

func routerRequest(method, path, email string, csrf bool) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(`{"email":"x@example.com","accessLevel":"active"}`))
	if email != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "token-" + email})
	}
	if csrf {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok"})
		req.Header.Set("X-CSRF-Token", "tok")
	}
	return req
}

func TestRouter_AccessMatrix(t *testing.T) {
	router := newTestRouter(t, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		email      string
		csrf       bool
		wantStatus int
	}{
		{"未認証でダッシュボード", http.MethodGet, "/api/dashboard", "", false, http.StatusUnauthorized},
		{"activeでダッシュボード", http.MethodGet, "/api/dashboard", "active@example.com", false, http.StatusOK},
		{"adminでダッシュボード", http.MethodGet, "/api/dashboard", "admin@example.com", false, http.StatusOK},
		{"retiredでダッシュボード", http.MethodGet, "/api/dashboard", "retired@example.com", false, http.StatusForbidden},
		{"未登録でダッシュボード", http.MethodGet, "/api/dashboard", "stranger@example.com", false, http.StatusForbidden},
		{"activeでサイドバー", http.MethodGet, "/api/sidebar", "active@example.com", false, http.StatusOK},
		{"activeで管理画面", http.MethodGet, "/api/admin/users", "active@example.com", false, http.StatusForbidden},
		{"adminで管理画面", http.MethodGet, "/api/admin/users", "admin@example.com", false, http.StatusOK},
		{"adminでCSRFなしPOST", http.MethodPost, "/api/admin/users", "admin@example.com", false, http.StatusForbidden},
		{"adminでCSRFありPOST", http.MethodPost, "/api/admin/users", "admin@example.com", true, http.StatusCreated},
		{"adminでサイドバー取得", http.MethodGet, "/api/admin/sidebar", "admin@example.com", false, http.StatusOK},
		{"ヘルスチェック", http.MethodGet, "/health", "", false, http.StatusOK},
		{"メトリクス", http.MethodGet, "/metrics", "", false, http.StatusOK},
		{"CSRFトークン", http.MethodGet, "/api/csrf-token", "", false, http.StatusOK},
		{"ログイン", http.MethodGet, "/auth/google/login", "", false, http.StatusTemporaryRedirect},
		{"未認証でme", http.MethodGet, "/auth/me", "", false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, routerRequest(tt.method, tt.path, tt.email, tt.csrf))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body = %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if w.Header().Get(middleware.RequestIDHeader) == "" {
				t.Error("request ID header missing")
			}
			if w.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers missing")
			}
		})
	}
}

func TestRouter_Dashboard(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, routerRequest(http.MethodGet, "/api/dashboard", "active@example.com", false))

	var got dashboardResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CalendarURL != "https://calendar.google.com/calendar/embed?src=club" {
		t.Errorf("calendarUrl = %q", got.CalendarURL)
	}
	if got.AccessLevel != model.AccessLevelActive {
		t.Errorf("accessLevel = %q", got.AccessLevel)
	}
	if got.Sidebar == nil || got.Sidebar.Version != 3 {
		t.Errorf("sidebar = %+v", got.Sidebar)
	}
}

func TestRouter_HealthUnavailable(t *testing.T) {
	router := newTestRouter(t, model.NewConfigurationError("REDIS_URL", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	var got healthResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil || got.Store != "configuration" {
		t.Errorf("health = %+v, err = %v", got, err)
	}
}

func TestDashboardHandler_NoSidebar(t *testing.T) {
	h := NewDashboardHandler(&mockSidebarStore{}, "https://calendar.example.com")

	w := httptest.NewRecorder()
	h.Dashboard(w, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"sidebar":null`) {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.Sidebar(w, httptest.NewRequest(http.MethodGet, "/api/sidebar", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}
