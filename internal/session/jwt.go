// Package session はステートレスなセッショントークン（HS256署名のJWT）を発行・検証する。
//
// セッションはサーバー側に保存しない。トークンには検証済みメールアドレスだけを載せ、
// アクセスレベルはリクエストごとにUser Directoryから引き直す。
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/groupdash/internal/model"
)

// minSecretLength はSESSION_SECRETに要求する最小長。
const minSecretLength = 32

// issuer はトークンのiss。
const issuer = "groupdash"

// ErrInvalidToken はトークンの署名・有効期限・形式のいずれかが不正な場合に返される。
var ErrInvalidToken = errors.New("invalid session token")

// Claims はセッショントークンのクレーム。
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Manager はセッショントークンの発行と検証を行う。
type Manager struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewManager はManagerを生成する。secretが短すぎる場合はエラーを返す。
func NewManager(secret string, maxAge time.Duration) (*Manager, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("SESSION_SECRET must be at least %d characters", minSecretLength)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("session max age must be positive: %v", maxAge)
	}
	return &Manager{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

// MaxAge はセッションの有効期間を返す。
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue はメールアドレスに対するトークンを発行し、有効期限とともに返す。
func (m *Manager) Issue(email string) (string, time.Time, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return "", time.Time{}, fmt.Errorf("email is required to issue a session")
	}

	now := m.now()
	expiresAt := now.Add(m.maxAge)
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify はトークンを検証してクレームを返す。
// HS256以外の署名方式のトークンは拒否する。
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
