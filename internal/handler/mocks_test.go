package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/hitoshi/groupdash/internal/access"
	"github.com/hitoshi/groupdash/internal/linkcheck"
	"github.com/hitoshi/groupdash/internal/model"
	"github.com/hitoshi/groupdash/internal/session"
	"github.com/hitoshi/groupdash/internal/sidebar"
	"github.com/hitoshi/groupdash/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	getCurrentUserFn func(ctx context.Context, email string) (*model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, email string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, email)
	}
	return nil, errors.New("not implemented")
}

type mockUserDirectory struct {
	listFn           func(ctx context.Context) ([]model.User, error)
	addFn            func(ctx context.Context, email string, level model.AccessLevel) error
	setAccessLevelFn func(ctx context.Context, email string, level model.AccessLevel) error
	deleteFn         func(ctx context.Context, email string) error
	addToSetFn       func(ctx context.Context, email string) error
	reconcileFn      func(ctx context.Context) (user.ReconcileReport, error)
}

func (m *mockUserDirectory) List(ctx context.Context) ([]model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockUserDirectory) Add(ctx context.Context, email string, level model.AccessLevel) error {
	if m.addFn != nil {
		return m.addFn(ctx, email, level)
	}
	return nil
}

func (m *mockUserDirectory) SetAccessLevel(ctx context.Context, email string, level model.AccessLevel) error {
	if m.setAccessLevelFn != nil {
		return m.setAccessLevelFn(ctx, email, level)
	}
	return nil
}

func (m *mockUserDirectory) Delete(ctx context.Context, email string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, email)
	}
	return nil
}

func (m *mockUserDirectory) AddToSet(ctx context.Context, email string) error {
	if m.addToSetFn != nil {
		return m.addToSetFn(ctx, email)
	}
	return nil
}

func (m *mockUserDirectory) Reconcile(ctx context.Context) (user.ReconcileReport, error) {
	if m.reconcileFn != nil {
		return m.reconcileFn(ctx)
	}
	return user.ReconcileReport{Dangling: []string{}, Restored: []string{}}, nil
}

type mockSidebarStore struct {
	getFn            func(ctx context.Context) (*model.SidebarDocument, error)
	replaceFn        func(ctx context.Context, doc *model.SidebarDocument) error
	initializeFn     func(ctx context.Context) (bool, error)
	addCategoryFn    func(ctx context.Context, category model.SidebarCategory) error
	updateCategoryFn func(ctx context.Context, categoryID string, update sidebar.CategoryUpdate) error
	deleteCategoryFn func(ctx context.Context, categoryID string) error
	addLinkFn        func(ctx context.Context, categoryID string, link model.SidebarLink) error
	updateLinkFn     func(ctx context.Context, categoryID, linkID string, update sidebar.LinkUpdate) error
	deleteLinkFn     func(ctx context.Context, categoryID, linkID string) error
}

func (m *mockSidebarStore) Get(ctx context.Context) (*model.SidebarDocument, error) {
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	return nil, nil
}

func (m *mockSidebarStore) Replace(ctx context.Context, doc *model.SidebarDocument) error {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, doc)
	}
	return nil
}

func (m *mockSidebarStore) Initialize(ctx context.Context) (bool, error) {
	if m.initializeFn != nil {
		return m.initializeFn(ctx)
	}
	return false, nil
}

func (m *mockSidebarStore) AddCategory(ctx context.Context, category model.SidebarCategory) error {
	if m.addCategoryFn != nil {
		return m.addCategoryFn(ctx, category)
	}
	return nil
}

func (m *mockSidebarStore) UpdateCategory(ctx context.Context, categoryID string, update sidebar.CategoryUpdate) error {
	if m.updateCategoryFn != nil {
		return m.updateCategoryFn(ctx, categoryID, update)
	}
	return nil
}

func (m *mockSidebarStore) DeleteCategory(ctx context.Context, categoryID string) error {
	if m.deleteCategoryFn != nil {
		return m.deleteCategoryFn(ctx, categoryID)
	}
	return nil
}

func (m *mockSidebarStore) AddLink(ctx context.Context, categoryID string, link model.SidebarLink) error {
	if m.addLinkFn != nil {
		return m.addLinkFn(ctx, categoryID, link)
	}
	return nil
}

func (m *mockSidebarStore) UpdateLink(ctx context.Context, categoryID, linkID string, update sidebar.LinkUpdate) error {
	if m.updateLinkFn != nil {
		return m.updateLinkFn(ctx, categoryID, linkID, update)
	}
	return nil
}

func (m *mockSidebarStore) DeleteLink(ctx context.Context, categoryID, linkID string) error {
	if m.deleteLinkFn != nil {
		return m.deleteLinkFn(ctx, categoryID, linkID)
	}
	return nil
}

type mockLinkChecker struct {
	checkFn func(ctx context.Context, doc *model.SidebarDocument) linkcheck.Report
}

func (m *mockLinkChecker) Check(ctx context.Context, doc *model.SidebarDocument) linkcheck.Report {
	if m.checkFn != nil {
		return m.checkFn(ctx, doc)
	}
	return linkcheck.Report{Results: []linkcheck.Result{}}
}

type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

// mockVerifier は "token-<email>" 形式のトークンだけを受け付ける。
type mockVerifier struct{}

func (mockVerifier) Verify(token string) (*session.Claims, error) {
	email, ok := strings.CutPrefix(token, "token-")
	if !ok || email == "" {
		return nil, session.ErrInvalidToken
	}
	return &session.Claims{Email: email}, nil
}

// mockAuthorizer は固定のユーザー表でaccess.Permitsに従って判定する。
type mockAuthorizer struct {
	levels map[string]model.AccessLevel
}

func (m *mockAuthorizer) Authorize(_ context.Context, email string, area access.Area) (model.AccessLevel, error) {
	level := m.levels[email]
	if !access.Permits(level, area) {
		return level, access.ErrForbidden
	}
	return level, nil
}

var (
	_ AuthServiceInterface   = (*mockAuthService)(nil)
	_ UserDirectoryInterface = (*mockUserDirectory)(nil)
	_ SidebarEditorInterface = (*mockSidebarStore)(nil)
	_ LinkCheckerInterface   = (*mockLinkChecker)(nil)
	_ HealthChecker          = (*mockHealthChecker)(nil)
)

// sampleDocument はテスト用のサイドバードキュメントを返す。
func sampleDocument() *model.SidebarDocument {
	return &model.SidebarDocument{
		Version: 3,
		Categories: []model.SidebarCategory{
			{ID: "general", Title: "General", Links: []model.SidebarLink{
				{ID: "home", Title: "Home", URL: "/"},
			}},
		},
	}
}
