package model

import "time"

// Session はサインイン時に発行されるセッションを表す。
// Tokenは署名済みトークンで、サーバー側には保存されない。
type Session struct {
	Token       string
	Email       string
	AccessLevel AccessLevel
	ExpiresAt   time.Time
}
