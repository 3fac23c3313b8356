package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/groupdash/internal/model"
)

// healthTimeout はヘルスチェックでKVストアに問い合わせる際のタイムアウト。
const healthTimeout = 2 * time.Second

// HealthChecker はヘルスチェックで疎通を確認する対象。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// NewHealthHandler はKVストアへの疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := checker.Ping(ctx); err != nil {
			slog.Warn("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{
				Status: "unavailable",
				Store:  model.KindOf(err).String(),
			})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "ok"})
	}
}
