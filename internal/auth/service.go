// Package auth はGoogle OAuthによるサインインとセッション発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/groupdash/internal/access"
	"github.com/hitoshi/groupdash/internal/model"
)

var (
	// ErrEmailNotVerified はGoogleアカウントのメールアドレスが未検証の場合に返される。
	ErrEmailNotVerified = errors.New("email address is not verified by the identity provider")
	// ErrNotAllowed は許可リストに無いメールアドレスでサインインしようとした場合に返される。
	ErrNotAllowed = errors.New("email address is not on the access list")
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
// Emailはプロバイダー側で検証済みのものだけが入る。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// SignInGate はサインイン可否の判定インターフェース。
type SignInGate interface {
	SignIn(ctx context.Context, email string) (access.Decision, error)
}

// TokenIssuer はセッショントークンの発行インターフェース。
type TokenIssuer interface {
	Issue(email string) (string, time.Time, error)
}

// UserFinder はユーザーレコードの参照インターフェース。
type UserFinder interface {
	Get(ctx context.Context, email string) (*model.User, error)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth  OAuthProvider
	gate   SignInGate
	tokens TokenIssuer
	users  UserFinder
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, gate SignInGate, tokens TokenIssuer, users UserFinder) *Service {
	return &Service{
		oauth:  oauth,
		gate:   gate,
		tokens: tokens,
		users:  users,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、許可リストに載っていればセッションを発行する。
// 許可リストに無い場合は ErrNotAllowed を返す。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	decision, err := s.gate.SignIn(ctx, info.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate sign-in: %w", err)
	}
	if !decision.Allowed {
		return nil, ErrNotAllowed
	}

	token, expiresAt, err := s.tokens.Issue(decision.User.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	slog.Info("user signed in",
		slog.String("email", decision.User.Email),
		slog.String("access_level", string(decision.User.AccessLevel)),
		slog.String("provider", info.Provider),
		slog.Bool("bootstrapped", decision.Bootstrapped),
	)

	return &model.Session{
		Token:       token,
		Email:       decision.User.Email,
		AccessLevel: decision.User.AccessLevel,
		ExpiresAt:   expiresAt,
	}, nil
}

// GetCurrentUser はセッションのメールアドレスに対応するユーザーレコードを返す。
// サインイン後に削除されたユーザーは ErrNotAllowed になる。
func (s *Service) GetCurrentUser(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	u, err := s.users.Get(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, ErrNotAllowed
	}
	return u, nil
}
