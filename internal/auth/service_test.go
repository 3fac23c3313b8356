package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/groupdash/internal/access"
	"github.com/hitoshi/groupdash/internal/model"
)

// --- モック定義 ---

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

type mockGate struct {
	signInFn func(ctx context.Context, email string) (access.Decision, error)
}

func (m *mockGate) SignIn(ctx context.Context, email string) (access.Decision, error) {
	return m.signInFn(ctx, email)
}

type mockIssuer struct {
	issueFn func(email string) (string, time.Time, error)
}

func (m *mockIssuer) Issue(email string) (string, time.Time, error) {
	if m.issueFn != nil {
		return m.issueFn(email)
	}
	return "token-for-" + email, time.Time{}, nil
}

type mockUserFinder struct {
	getFn func(ctx context.Context, email string) (*model.User, error)
}

func (m *mockUserFinder) Get(ctx context.Context, email string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, email)
	}
	return nil, nil
}

var (
	_ OAuthProvider = (*mockOAuthProvider)(nil)
	_ SignInGate    = (*mockGate)(nil)
	_ TokenIssuer   = (*mockIssuer)(nil)
	_ UserFinder    = (*mockUserFinder)(nil)
)

func verifiedUser(email string) *mockOAuthProvider {
	return &mockOAuthProvider{
		exchangeCodeFn: func(_ context.Context, _ string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{ProviderUserID: "sub-1", Email: email, Provider: "google"}, nil
		},
	}
}

// --- テスト ---

func TestGetLoginURL_ReturnsOAuthURL(t *testing.T) {
	svc := NewService(&mockOAuthProvider{
		getLoginURLFn: func(state string) string { return "https://accounts.example.com/auth?state=" + state },
	}, nil, nil, nil)

	if got := svc.GetLoginURL("abc"); got != "https://accounts.example.com/auth?state=abc" {
		t.Errorf("GetLoginURL = %q", got)
	}
}

func TestHandleCallback_AllowedUser_IssuesSession(t *testing.T) {
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	gate := &mockGate{signInFn: func(_ context.Context, email string) (access.Decision, error) {
		return access.Decision{Allowed: true, User: &model.User{Email: "runner@example.com", AccessLevel: model.AccessLevelActive}}, nil
	}}
	issuer := &mockIssuer{issueFn: func(email string) (string, time.Time, error) {
		return "signed-token", expires, nil
	}}

	svc := NewService(verifiedUser("Runner@Example.com"), gate, issuer, nil)
	sess, err := svc.HandleCallback(context.Background(), "code")
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if sess.Token != "signed-token" || sess.Email != "runner@example.com" ||
		sess.AccessLevel != model.AccessLevelActive || !sess.ExpiresAt.Equal(expires) {
		t.Errorf("session = %+v", sess)
	}
}

func TestHandleCallback_DeniedUser_ReturnsErrNotAllowed(t *testing.T) {
	issued := false
	gate := &mockGate{signInFn: func(context.Context, string) (access.Decision, error) {
		return access.Decision{Allowed: false}, nil
	}}
	issuer := &mockIssuer{issueFn: func(string) (string, time.Time, error) {
		issued = true
		return "", time.Time{}, nil
	}}

	svc := NewService(verifiedUser("stranger@example.com"), gate, issuer, nil)
	_, err := svc.HandleCallback(context.Background(), "code")
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
	if issued {
		t.Error("session must not be issued for a denied user")
	}
}

func TestHandleCallback_OAuthError_ReturnsError(t *testing.T) {
	oauth := &mockOAuthProvider{exchangeCodeFn: func(context.Context, string) (*OAuthUserInfo, error) {
		return nil, ErrEmailNotVerified
	}}
	svc := NewService(oauth, &mockGate{}, &mockIssuer{}, nil)

	_, err := svc.HandleCallback(context.Background(), "code")
	if !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}
}

func TestHandleCallback_StoreError_Propagates(t *testing.T) {
	storeErr := model.NewConfigurationError("REDIS_URL", nil)
	gate := &mockGate{signInFn: func(context.Context, string) (access.Decision, error) {
		return access.Decision{}, storeErr
	}}
	svc := NewService(verifiedUser("a@example.com"), gate, &mockIssuer{}, nil)

	_, err := svc.HandleCallback(context.Background(), "code")
	if !model.IsKind(err, model.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGetCurrentUser(t *testing.T) {
	users := &mockUserFinder{getFn: func(_ context.Context, email string) (*model.User, error) {
		if email == "admin@example.com" {
			return &model.User{Email: email, AccessLevel: model.AccessLevelAdmin}, nil
		}
		return nil, nil
	}}
	svc := NewService(nil, nil, nil, users)

	u, err := svc.GetCurrentUser(context.Background(), "admin@example.com")
	if err != nil || u.AccessLevel != model.AccessLevelAdmin {
		t.Errorf("GetCurrentUser = %+v, %v", u, err)
	}

	if _, err := svc.GetCurrentUser(context.Background(), "removed@example.com"); !errors.Is(err, ErrNotAllowed) {
		t.Errorf("removed user: expected ErrNotAllowed, got %v", err)
	}
	if _, err := svc.GetCurrentUser(context.Background(), ""); err == nil {
		t.Error("expected error for empty email")
	}
}
