package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_CLIENT_ID", "test-client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "test-client-secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback")
	t.Setenv("SESSION_SECRET", "test-session-secret-32bytes-long!")
	t.Setenv("BASE_URL", "http://localhost:8080")
}

// clearOptionalEnvVars はホスト環境に残った任意設定の影響を排除する。
func clearOptionalEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"REDIS_URL", "BOOTSTRAP_ADMIN_EMAIL", "SESSION_MAX_AGE", "CALENDAR_EMBED_URL",
		"LINK_CHECK_TIMEOUT", "RATE_LIMIT_GENERAL", "RATE_LIMIT_ADMIN", "LOG_LEVEL",
		"SERVER_PORT", "COOKIE_DOMAIN", "CORS_ALLOWED_ORIGIN",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_AllRequiredVarsSet_ReturnsConfig(t *testing.T) {
	clearOptionalEnvVars(t)
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.GoogleClientID != "test-client-id" {
		t.Errorf("GoogleClientID = %q, want %q", cfg.GoogleClientID, "test-client-id")
	}
	if cfg.GoogleClientSecret != "test-client-secret" {
		t.Errorf("GoogleClientSecret = %q, want %q", cfg.GoogleClientSecret, "test-client-secret")
	}
	if cfg.GoogleRedirectURL != "http://localhost:8080/auth/google/callback" {
		t.Errorf("GoogleRedirectURL = %q", cfg.GoogleRedirectURL)
	}
	if cfg.SessionSecret != "test-session-secret-32bytes-long!" {
		t.Errorf("SessionSecret = %q", cfg.SessionSecret)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8080")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearOptionalEnvVars(t)
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty", cfg.RedisURL)
	}
	if cfg.SessionMaxAge != 2592000 {
		t.Errorf("SessionMaxAge = %d, want %d", cfg.SessionMaxAge, 2592000)
	}
	if cfg.SessionDuration() != 30*24*time.Hour {
		t.Errorf("SessionDuration = %v", cfg.SessionDuration())
	}
	if cfg.CalendarEmbedURL != DefaultCalendarEmbedURL {
		t.Errorf("CalendarEmbedURL = %q", cfg.CalendarEmbedURL)
	}
	if cfg.LinkCheckTimeout != 5*time.Second {
		t.Errorf("LinkCheckTimeout = %v, want %v", cfg.LinkCheckTimeout, 5*time.Second)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want %d", cfg.RateLimitGeneral, 120)
	}
	if cfg.RateLimitAdmin != 30 {
		t.Errorf("RateLimitAdmin = %d, want %d", cfg.RateLimitAdmin, 30)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure should be false for http BASE_URL")
	}
	if cfg.CookieDomain != "" || cfg.CORSAllowedOrigin != "" || cfg.BootstrapAdminEmail != "" {
		t.Errorf("unexpected optional values: %+v", cfg)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearOptionalEnvVars(t)
	setRequiredEnvVars(t)
	t.Setenv("BASE_URL", "https://club.example.com")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("BOOTSTRAP_ADMIN_EMAIL", "  Coach@Example.com ")
	t.Setenv("SESSION_MAX_AGE", "3600")
	t.Setenv("CALENDAR_EMBED_URL", "https://calendar.google.com/calendar/embed?src=club")
	t.Setenv("LINK_CHECK_TIMEOUT", "2s")
	t.Setenv("RATE_LIMIT_GENERAL", "60")
	t.Setenv("RATE_LIMIT_ADMIN", "10")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SERVER_PORT", "3000")
	t.Setenv("COOKIE_DOMAIN", "club.example.com")
	t.Setenv("CORS_ALLOWED_ORIGIN", "https://club.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.BootstrapAdminEmail != "coach@example.com" {
		t.Errorf("BootstrapAdminEmail = %q, want normalized", cfg.BootstrapAdminEmail)
	}
	if cfg.SessionDuration() != time.Hour {
		t.Errorf("SessionDuration = %v, want 1h", cfg.SessionDuration())
	}
	if cfg.CalendarEmbedURL != "https://calendar.google.com/calendar/embed?src=club" {
		t.Errorf("CalendarEmbedURL = %q", cfg.CalendarEmbedURL)
	}
	if cfg.LinkCheckTimeout != 2*time.Second {
		t.Errorf("LinkCheckTimeout = %v", cfg.LinkCheckTimeout)
	}
	if cfg.RateLimitGeneral != 60 || cfg.RateLimitAdmin != 10 {
		t.Errorf("rate limits = %d/%d", cfg.RateLimitGeneral, cfg.RateLimitAdmin)
	}
	if cfg.LogLevel != "debug" || cfg.ServerPort != "3000" {
		t.Errorf("LogLevel = %q, ServerPort = %q", cfg.LogLevel, cfg.ServerPort)
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure should be true for https BASE_URL")
	}
	if cfg.CookieDomain != "club.example.com" || cfg.CORSAllowedOrigin != "https://club.example.com" {
		t.Errorf("CookieDomain = %q, CORSAllowedOrigin = %q", cfg.CookieDomain, cfg.CORSAllowedOrigin)
	}
}

func TestLoad_InvalidNumbersFallBackToDefaults(t *testing.T) {
	clearOptionalEnvVars(t)
	setRequiredEnvVars(t)
	t.Setenv("SESSION_MAX_AGE", "forever")
	t.Setenv("RATE_LIMIT_GENERAL", "-5")
	t.Setenv("LINK_CHECK_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.SessionMaxAge != 2592000 {
		t.Errorf("SessionMaxAge = %d", cfg.SessionMaxAge)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d", cfg.RateLimitGeneral)
	}
	if cfg.LinkCheckTimeout != 5*time.Second {
		t.Errorf("LinkCheckTimeout = %v", cfg.LinkCheckTimeout)
	}
}

func TestLoad_MissingRequiredVars(t *testing.T) {
	tests := []struct {
		name    string
		unset   string
		wantMsg string
	}{
		{"GOOGLE_CLIENT_ID欠落", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID"},
		{"GOOGLE_CLIENT_SECRET欠落", "GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET"},
		{"GOOGLE_REDIRECT_URL欠落", "GOOGLE_REDIRECT_URL", "GOOGLE_REDIRECT_URL"},
		{"SESSION_SECRET欠落", "SESSION_SECRET", "SESSION_SECRET"},
		{"BASE_URL欠落", "BASE_URL", "BASE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnvVars(t)
			t.Setenv(tt.unset, "")

			_, err := Load()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLoad_RedisURLIsNotRequired(t *testing.T) {
	clearOptionalEnvVars(t)
	setRequiredEnvVars(t)

	if _, err := Load(); err != nil {
		t.Fatalf("REDIS_URL must be checked lazily, got %v", err)
	}
}
