package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/groupdash/internal/access"
	"github.com/hitoshi/groupdash/internal/model"
)

// accessLevelContextKey はリクエストコンテキストに解決済みのアクセスレベルを格納するためのキー。
var accessLevelContextKey = contextKey("access_level")

// Authorizer はエリアごとのアクセス判定に必要なインターフェース。
type Authorizer interface {
	Authorize(ctx context.Context, email string, area access.Area) (model.AccessLevel, error)
}

// NewAccessMiddleware はサインイン中のユーザーが指定エリアを利用できるか判定するミドルウェアを返す。
// SessionMiddlewareの後に配置する。判定はリクエストごとに1回だけ行い、
// 結果のアクセスレベルをコンテキストに格納する。
func NewAccessMiddleware(authz Authorizer, area access.Area) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email, err := EmailFromContext(r.Context())
			if err != nil {
				WriteUnauthorized(w)
				return
			}

			level, err := authz.Authorize(r.Context(), email, area)
			if errors.Is(err, access.ErrForbidden) {
				slog.Warn("access denied",
					slog.String("email", email),
					slog.String("area", string(area)),
					slog.String("access_level", string(level)),
				)
				WriteForbidden(w)
				return
			}
			if err != nil {
				WriteStoreError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), accessLevelContextKey, level)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLevelFromContext はAccessMiddlewareが解決したアクセスレベルを返す。
// 未解決の場合は空文字。
func AccessLevelFromContext(ctx context.Context) model.AccessLevel {
	level, _ := ctx.Value(accessLevelContextKey).(model.AccessLevel)
	return level
}
