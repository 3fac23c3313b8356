package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/groupdash/internal/access"
	"github.com/hitoshi/groupdash/internal/auth"
	"github.com/hitoshi/groupdash/internal/config"
	"github.com/hitoshi/groupdash/internal/handler"
	"github.com/hitoshi/groupdash/internal/kv"
	"github.com/hitoshi/groupdash/internal/linkcheck"
	"github.com/hitoshi/groupdash/internal/logger"
	"github.com/hitoshi/groupdash/internal/metrics"
	"github.com/hitoshi/groupdash/internal/middleware"
	"github.com/hitoshi/groupdash/internal/model"
	"github.com/hitoshi/groupdash/internal/security"
	"github.com/hitoshi/groupdash/internal/session"
	"github.com/hitoshi/groupdash/internal/sidebar"
	"github.com/hitoshi/groupdash/internal/user"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(fmt.Sprintf("http://localhost:%s/health", port))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandInit:
		return runInit(ctx, cfg)
	case CommandReconcile:
		return runReconcile(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// stores はKVクライアントと、その上に構築したドメインストア群。
type stores struct {
	kv      *kv.Client
	users   *user.Directory
	sidebar *sidebar.Store
	guard   security.LinkGuard
}

func newStores(cfg *config.Config, recorder metrics.Recorder) *stores {
	client := kv.New(cfg.RedisURL, recorder)
	guard := security.NewLinkGuard()
	return &stores{
		kv:      client,
		users:   user.NewDirectory(client),
		sidebar: sidebar.NewStore(client, security.NewTextSanitizer(), guard, recorder),
		guard:   guard,
	}
}

func (s *stores) close() {
	if err := s.kv.Close(); err != nil {
		slog.Warn("failed to close KV client", slog.String("error", err.Error()))
	}
}

// newRegistry はアプリケーションメトリクスとランタイムメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildHandler は全依存関係をワイヤリングしたHTTPハンドラーを構築する。
// 返されたRateLimiterは呼び出し側でStopする。
func buildHandler(cfg *config.Config, st *stores, reg *prometheus.Registry, recorder metrics.Recorder) (http.Handler, *middleware.RateLimiter, error) {
	// 1. セッション
	sessions, err := session.NewManager(cfg.SessionSecret, cfg.SessionDuration())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	// 2. アクセス判定と認証
	gate := access.NewGate(st.users, cfg.BootstrapAdminEmail, recorder)
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(oauthProvider, gate, sessions, st.users)

	// 3. リンク確認
	checker := linkcheck.NewChecker(st.guard.NewSafeClient(cfg.LinkCheckTimeout), st.guard)

	// 4. ルーターの構築
	// configのレート制限はreq/min単位
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAdmin),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		TokenVerifier:     sessions,
		Authorizer:        gate,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		Recorder:       recorder,
		MetricsHandler: metrics.Handler(reg),
		HealthChecker:  st.kv,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		Sidebar:     st.sidebar,
		CalendarURL: cfg.CalendarEmbedURL,
		LinkChecker: checker,

		Users: st.users,
	})

	return router, rateLimiter, nil
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT / SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	reg, collector := newRegistry()
	st := newStores(cfg, collector)
	defer st.close()

	// REDIS_URLの不備は起動を止めず、各リクエストでConfigurationエラーとして返す
	if err := st.kv.Ping(ctx); err != nil {
		slog.Warn("KV store is not reachable at startup",
			slog.String("kind", model.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
	} else {
		slog.Info("KV store connection established")
	}

	router, rateLimiter, err := buildHandler(cfg, st, reg, collector)
	if err != nil {
		return err
	}
	defer rateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("server listen failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runInit は既定のサイドバーを投入する。既に存在する場合は変更しない。
func runInit(ctx context.Context, cfg *config.Config) error {
	st := newStores(cfg, metrics.Nop{})
	defer st.close()

	created, err := st.sidebar.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize sidebar: %w", err)
	}

	if created {
		slog.Info("default sidebar created")
	} else {
		slog.Info("sidebar already exists, skipped")
	}
	return nil
}

// runReconcile はusers:setとユーザーレコードの対応を修復する。
func runReconcile(ctx context.Context, cfg *config.Config) error {
	st := newStores(cfg, metrics.Nop{})
	defer st.close()

	report, err := st.users.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile users: %w", err)
	}

	slog.Info("user directory reconciled",
		slog.Any("dangling", report.Dangling),
		slog.Any("restored", report.Restored),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
