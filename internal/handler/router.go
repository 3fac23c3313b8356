package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/groupdash/internal/access"
	"github.com/hitoshi/groupdash/internal/metrics"
	"github.com/hitoshi/groupdash/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	Authorizer        middleware.Authorizer
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Recorder          metrics.Recorder
	MetricsHandler    http.Handler
	HealthChecker     HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ダッシュボード
	Sidebar     SidebarEditorInterface
	CalendarURL string
	LinkChecker LinkCheckerInterface

	// ユーザー管理
	Users UserDirectoryInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Metrics → Recovery → SecurityHeaders → CORS
//	  → Session → RateLimit(General) → Access(area) [→ RateLimit(Admin) → CSRF]
//
// 認証ルート（/auth/*）とヘルスチェックはセッション不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(recorder))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	dashboardHandler := NewDashboardHandler(deps.Sidebar, deps.CalendarURL)
	userHandler := NewUserHandler(deps.Users)
	sidebarHandler := NewSidebarHandler(deps.Sidebar, deps.LinkChecker)

	session := middleware.NewSessionMiddleware(deps.TokenVerifier)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.With(session).Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(session)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 一般エリア（active / admin）
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAccessMiddleware(deps.Authorizer, access.AreaGeneral))
			r.Get("/api/dashboard", dashboardHandler.Dashboard)
			r.Get("/api/sidebar", dashboardHandler.Sidebar)
		})

		// 管理エリア（admin）
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewAccessMiddleware(deps.Authorizer, access.AreaAdmin))
			r.Use(deps.RateLimiter.AdminMiddleware())
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", userHandler.ListUsers)
				r.Post("/", userHandler.AddUser)
				r.Post("/set-members", userHandler.AddToSet)
				r.Post("/reconcile", userHandler.Reconcile)
				r.Put("/{email}/access-level", userHandler.SetAccessLevel)
				r.Delete("/{email}", userHandler.DeleteUser)
			})

			r.Route("/sidebar", func(r chi.Router) {
				r.Get("/", sidebarHandler.GetSidebar)
				r.Put("/", sidebarHandler.ReplaceSidebar)
				r.Post("/initialize", sidebarHandler.Initialize)
				r.Post("/links/check", sidebarHandler.CheckLinks)

				r.Route("/categories", func(r chi.Router) {
					r.Post("/", sidebarHandler.AddCategory)
					r.Route("/{categoryID}", func(r chi.Router) {
						r.Patch("/", sidebarHandler.UpdateCategory)
						r.Delete("/", sidebarHandler.DeleteCategory)
						r.Post("/links", sidebarHandler.AddLink)
						r.Patch("/links/{linkID}", sidebarHandler.UpdateLink)
						r.Delete("/links/{linkID}", sidebarHandler.DeleteLink)
					})
				})
			})
		})
	})

	return r
}
