// Package model はドメインモデルを定義する。
package model

import "strings"

// AccessLevel はユーザーのアクセスレベルを表す。
type AccessLevel string

const (
	// AccessLevelActive は一般機能を利用できるアクティブメンバー。
	AccessLevelActive AccessLevel = "active"
	// AccessLevelRetired は退役メンバー。サインインはできるが一般機能は利用できない。
	AccessLevelRetired AccessLevel = "retired"
	// AccessLevelAdmin は管理機能まで利用できる管理者。
	AccessLevelAdmin AccessLevel = "admin"
)

// Valid はアクセスレベルが定義済みの値かどうかを返す。
func (l AccessLevel) Valid() bool {
	switch l {
	case AccessLevelActive, AccessLevelRetired, AccessLevelAdmin:
		return true
	default:
		return false
	}
}

// User は許可リストに登録されたユーザーを表す。
// Emailは小文字に正規化され、ストレージキー（user:<email>）にも使われる。
type User struct {
	Email       string      `json:"email"`
	AccessLevel AccessLevel `json:"accessLevel"`
}

// NormalizeEmail はメールアドレスを比較・キー用に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
