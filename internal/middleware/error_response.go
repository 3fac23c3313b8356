package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/hitoshi/groupdash/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}); err != nil {
		slog.Error("failed to encode error response", slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternalError,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// WriteUnauthorized は未認証の統一レスポンスを書き込む。
func WriteUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// WriteForbidden はアクセス権不足の統一レスポンスを書き込む。
func WriteForbidden(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
}

// WriteStoreError はストア層エラーを種別に応じたステータスで書き込む。
// StoreErrorを含まないエラーは500として詳細を伏せる。
func WriteStoreError(w http.ResponseWriter, err error) {
	var se *model.StoreError
	if !errors.As(err, &se) {
		slog.Error("unexpected error", slog.String("error", err.Error()))
		WriteInternalServerError(w)
		return
	}

	if se.Kind == model.KindConfiguration || se.Kind == model.KindTransport {
		slog.Error("store request failed",
			slog.String("kind", se.Kind.String()),
			slog.String("ident", se.Ident),
			slog.String("error", err.Error()),
		)
	}
	WriteErrorResponse(w, StatusForKind(se.Kind), model.NewAPIErrorFromStore(se))
}

// StatusForKind はストア層エラーの種別をHTTPステータスコードに変換する。
func StatusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	case model.KindConfiguration:
		return http.StatusServiceUnavailable
	case model.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
