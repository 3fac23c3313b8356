package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/hitoshi/groupdash/internal/access"
	"github.com/hitoshi/groupdash/internal/auth"
	"github.com/hitoshi/groupdash/internal/middleware"
	"github.com/hitoshi/groupdash/internal/model"
)

// maxBodyBytes はリクエストボディの上限。サイドバー全体の置き換えが収まる大きさにする。
const maxBodyBytes = 1 << 20

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// requestValidator はリクエスト構造体の検証器を返す。初回呼び出し時に生成する。
func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// decodeRequest はJSONボディを読み取り、validateタグで検証する。
// 失敗時はレスポンスを書き込んでfalseを返す。
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("JSONの解析に失敗しました"))
		return false
	}
	if apiErr := validateRequest(dst); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return false
	}
	return true
}

// validateRequest は構造体を検証し、失敗した場合はAPIErrorを返す。
func validateRequest(v any) *model.APIError {
	err := requestValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return model.NewInvalidBodyError(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return model.NewInvalidBodyError(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag())
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
	case errors.Is(err, access.ErrForbidden), errors.Is(err, auth.ErrNotAllowed):
		middleware.WriteForbidden(w)
	default:
		middleware.WriteStoreError(w, err)
	}
}

// currentEmail はセッションミドルウェアが注入したメールアドレスを返す。
// 取得できない場合は401を書き込んで空文字を返す。
func currentEmail(w http.ResponseWriter, r *http.Request) string {
	email, err := middleware.EmailFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return ""
	}
	return email
}
