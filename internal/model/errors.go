// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, store, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ErrorKind はストア層エラーの種別。閉じた列挙として扱う。
type ErrorKind int

const (
	// KindConfiguration は接続設定の欠落・不正。
	KindConfiguration ErrorKind = iota + 1
	// KindTransport はリモート呼び出し自体の失敗（ネットワーク、認証、シリアライズ）。
	KindTransport
	// KindValidation は必須項目の欠落など。リモート呼び出し前に返される。
	KindValidation
	// KindNotFound は参照先のドキュメント・カテゴリ・リンクが存在しない。
	KindNotFound
	// KindConflict は作成時のID重複、または楽観ロックの競合。
	KindConflict
)

// String はエラー種別の名前を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// StoreError はUser Directory / Sidebar Document Store / KVファサードが返すエラー。
// Identには原因となった識別子（キー、カテゴリID、メールアドレス等）が入る。
type StoreError struct {
	Kind    ErrorKind
	Ident   string
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap は原因エラーを返す。
func (e *StoreError) Unwrap() error {
	return e.Err
}

// KindOf はエラーチェーンからStoreErrorの種別を取り出す。
// StoreErrorを含まない場合は0を返す。
func KindOf(err error) ErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// IsKind はエラーが指定種別のStoreErrorかどうかを返す。
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// NewConfigurationError は設定不備エラーを生成する。
func NewConfigurationError(setting string, err error) *StoreError {
	return &StoreError{
		Kind:    KindConfiguration,
		Ident:   setting,
		Message: fmt.Sprintf("missing or invalid KV configuration: %s", setting),
		Err:     err,
	}
}

// NewTransportError はリモート呼び出しの失敗を生成する。
func NewTransportError(op, key string, err error) *StoreError {
	return &StoreError{
		Kind:    KindTransport,
		Ident:   key,
		Message: fmt.Sprintf("kv %s failed for key '%s'", op, key),
		Err:     err,
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(field, message string) *StoreError {
	return &StoreError{
		Kind:    KindValidation,
		Ident:   field,
		Message: message,
	}
}

// NewNotFoundError は参照先未検出エラーを生成する。
func NewNotFoundError(ident, message string) *StoreError {
	return &StoreError{
		Kind:    KindNotFound,
		Ident:   ident,
		Message: message,
	}
}

// NewConflictError は重複・競合エラーを生成する。
func NewConflictError(ident, message string) *StoreError {
	return &StoreError{
		Kind:    KindConflict,
		Ident:   ident,
		Message: message,
	}
}

// 定義済みエラーコード
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeStoreConfig   = "STORE_NOT_CONFIGURED"
	ErrCodeStoreFailed   = "STORE_UNAVAILABLE"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeInvalidBody   = "INVALID_BODY"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// NewAPIErrorFromStore はStoreErrorをUI向けのAPIErrorに変換する。
func NewAPIErrorFromStore(se *StoreError) *APIError {
	switch se.Kind {
	case KindValidation:
		return &APIError{
			Code:     ErrCodeValidation,
			Message:  se.Message,
			Category: "validation",
			Action:   "入力内容を確認してください。",
		}
	case KindNotFound:
		return &APIError{
			Code:     ErrCodeNotFound,
			Message:  se.Message,
			Category: "store",
			Action:   "画面を再読み込みして最新の状態を確認してください。",
		}
	case KindConflict:
		return &APIError{
			Code:     ErrCodeConflict,
			Message:  se.Message,
			Category: "store",
			Action:   "最新のデータを取得してから再度お試しください。",
		}
	case KindConfiguration:
		return &APIError{
			Code:     ErrCodeStoreConfig,
			Message:  "データストアが設定されていません。",
			Category: "system",
			Action:   "管理者に連絡してください。",
		}
	default:
		return &APIError{
			Code:     ErrCodeStoreFailed,
			Message:  "データストアへのアクセスに失敗しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このページへのアクセス権限がありません。",
		Category: "auth",
		Action:   "管理者にアクセス権限を依頼してください。",
	}
}

// NewInvalidBodyError はリクエストボディ不正エラーを生成する。
func NewInvalidBodyError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBody,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}
