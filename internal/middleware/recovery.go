package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラー内のpanicを捕捉し、統一形式の500レスポンスを返すミドルウェアを生成する。
// LoggingとMetricsの内側に置く。捕捉したpanicは500としてリクエストログとメトリクスに記録される。
// http.ErrAbortHandlerはnet/httpに応答の中断を伝えるため、そのまま再送出する。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				args := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				if id := RequestIDFromContext(r.Context()); id != "" {
					args = append(args, slog.String("request_id", id))
				}
				// セッションミドルウェアがannotateEmailで書き込んだ値
				if f, ok := r.Context().Value(logFieldsContextKey).(*requestLogFields); ok && f.email != "" {
					args = append(args, slog.String("email", f.email))
				}
				args = append(args, slog.String("stack", string(debug.Stack())))

				logger.Error("panic recovered", args...)
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
