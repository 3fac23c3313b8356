// Package sidebar はサイドバーのシングルトンドキュメントを管理する。
//
// ドキュメントは sidebar:data に丸ごと保存される。変更系の操作はすべて
// 読み取り→メモリ上で変更→全体書き戻し を楽観的トランザクション内で行い、
// 途中で他の書き込みがあった場合はConflictエラーで失敗する。
package sidebar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/groupdash/internal/kv"
	"github.com/hitoshi/groupdash/internal/metrics"
	"github.com/hitoshi/groupdash/internal/model"
	"github.com/hitoshi/groupdash/internal/security"
)

const sidebarKey = "sidebar:data"

// URLValidator はリンクURLの検証インターフェース。
type URLValidator interface {
	ValidateLinkURL(rawURL string) error
}

// CategoryUpdate はカテゴリの部分更新。nilのフィールドは変更しない。
// IDとLinksは更新対象に含まれない。
type CategoryUpdate struct {
	Title     *string
	Icon      *string
	Collapsed *bool
}

// LinkUpdate はリンクの部分更新。nilのフィールドは変更しない。
type LinkUpdate struct {
	Title       *string
	URL         *string
	Icon        *string
	Description *string
}

// Store はサイドバードキュメントの読み書きを行う。
type Store struct {
	kv        *kv.Client
	sanitizer security.TextSanitizer
	urls      URLValidator
	recorder  metrics.Recorder
	now       func() time.Time
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(client *kv.Client, sanitizer security.TextSanitizer, urls URLValidator, recorder metrics.Recorder) *Store {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Store{
		kv:        client,
		sanitizer: sanitizer,
		urls:      urls,
		recorder:  recorder,
		now:       time.Now,
	}
}

// Get はサイドバードキュメントを返す。未作成の場合は nil, nil。
func (s *Store) Get(ctx context.Context) (*model.SidebarDocument, error) {
	var doc model.SidebarDocument
	found, err := s.kv.Get(ctx, sidebarKey, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &doc, nil
}

// Set はドキュメントを無条件に書き込む。
// 保存されるVersionは doc.Version+1、LastUpdatedは現在時刻になる。
func (s *Store) Set(ctx context.Context, doc *model.SidebarDocument) error {
	if doc == nil {
		return model.NewValidationError("document", "Sidebar document is required")
	}
	if err := s.kv.Set(ctx, sidebarKey, s.stamp(doc)); err != nil {
		return err
	}
	s.written("set", doc.Version+1)
	return nil
}

// Replace はクライアントから送られた全体ドキュメントで置き換える（並べ替え用）。
// doc.Versionが保存中のVersion（未作成なら0）と一致しない場合はConflictエラーを返す。
func (s *Store) Replace(ctx context.Context, doc *model.SidebarDocument) error {
	if doc == nil {
		return model.NewValidationError("document", "Sidebar document is required")
	}
	cleaned, err := s.cleanDocument(doc)
	if err != nil {
		return err
	}

	err = s.kv.Atomic(ctx, sidebarKey, func(tx *kv.Tx) error {
		var current model.SidebarDocument
		found, err := tx.Get(ctx, sidebarKey, &current)
		if err != nil {
			return fmt.Errorf("failed to fetch existing sidebar data: %w", err)
		}
		currentVersion := 0
		if found {
			currentVersion = current.Version
		}
		if cleaned.Version != currentVersion {
			return model.NewConflictError(sidebarKey, fmt.Sprintf(
				"Sidebar data has been modified (submitted version %d, current version %d)",
				cleaned.Version, currentVersion))
		}
		return tx.Commit(ctx, kv.SetOp(sidebarKey, s.stamp(cleaned)))
	})
	if err != nil {
		return err
	}
	s.written("replace", cleaned.Version+1)
	return nil
}

// Initialize はドキュメントが未作成の場合のみ既定のサイドバーを書き込む。
// 既に存在する場合は何もせず created=false を返す。
func (s *Store) Initialize(ctx context.Context) (created bool, err error) {
	def := DefaultDocument()
	err = s.kv.Atomic(ctx, sidebarKey, func(tx *kv.Tx) error {
		exists, err := tx.Exists(ctx, sidebarKey)
		if err != nil {
			return fmt.Errorf("failed to check existing sidebar data: %w", err)
		}
		if exists {
			return nil
		}
		created = true
		return tx.Commit(ctx, kv.SetOp(sidebarKey, s.stamp(def)))
	})
	if err != nil {
		return false, err
	}
	if created {
		s.written("initialize", def.Version+1)
	}
	return created, nil
}

// AddCategory はカテゴリを末尾に追加する。ドキュメントが未作成の場合は空から始める。
func (s *Store) AddCategory(ctx context.Context, category model.SidebarCategory) error {
	cat, err := s.cleanCategory(category)
	if err != nil {
		return err
	}

	return s.mutate(ctx, "add_category", func(doc *model.SidebarDocument) (*model.SidebarDocument, error) {
		if doc == nil {
			doc = &model.SidebarDocument{Categories: []model.SidebarCategory{}}
		}
		if doc.CategoryIndex(cat.ID) >= 0 {
			return nil, model.NewConflictError(cat.ID,
				fmt.Sprintf("Category with ID '%s' already exists", cat.ID))
		}
		doc.Categories = append(doc.Categories, cat)
		return doc, nil
	})
}

// UpdateCategory はカテゴリのフィールドを部分更新する。IDとLinksは保持される。
func (s *Store) UpdateCategory(ctx context.Context, categoryID string, update CategoryUpdate) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return model.NewValidationError("id", "Category ID is required")
	}
	if update.Title != nil {
		title := s.sanitizer.SanitizeText(*update.Title)
		if title == "" {
			return model.NewValidationError("title", "Category title is required")
		}
		update.Title = &title
	}
	if update.Icon != nil {
		icon := s.sanitizer.SanitizeText(*update.Icon)
		update.Icon = &icon
	}

	return s.mutate(ctx, "update_category", func(doc *model.SidebarDocument) (*model.SidebarDocument, error) {
		idx, err := findCategory(doc, categoryID)
		if err != nil {
			return nil, err
		}
		cat := &doc.Categories[idx]
		if update.Title != nil {
			cat.Title = *update.Title
		}
		if update.Icon != nil {
			cat.Icon = *update.Icon
		}
		if update.Collapsed != nil {
			cat.Collapsed = *update.Collapsed
		}
		return doc, nil
	})
}

// DeleteCategory はカテゴリを配下のリンクごと削除する。
func (s *Store) DeleteCategory(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return model.NewValidationError("id", "Category ID is required")
	}

	return s.mutate(ctx, "delete_category", func(doc *model.SidebarDocument) (*model.SidebarDocument, error) {
		idx, err := findCategory(doc, categoryID)
		if err != nil {
			return nil, err
		}
		doc.Categories = append(doc.Categories[:idx], doc.Categories[idx+1:]...)
		return doc, nil
	})
}

// AddLink はカテゴリの末尾にリンクを追加する。リンクIDはカテゴリ内で一意。
func (s *Store) AddLink(ctx context.Context, categoryID string, link model.SidebarLink) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return model.NewValidationError("categoryId", "Category ID is required")
	}
	l, err := s.cleanLink(link)
	if err != nil {
		return err
	}

	return s.mutate(ctx, "add_link", func(doc *model.SidebarDocument) (*model.SidebarDocument, error) {
		idx, err := findCategory(doc, categoryID)
		if err != nil {
			return nil, err
		}
		cat := &doc.Categories[idx]
		if cat.LinkIndex(l.ID) >= 0 {
			return nil, model.NewConflictError(l.ID,
				fmt.Sprintf("Link with ID '%s' already exists in category '%s'", l.ID, categoryID))
		}
		cat.Links = append(cat.Links, l)
		return doc, nil
	})
}

// UpdateLink はリンクのフィールドを部分更新する。IDは保持される。
func (s *Store) UpdateLink(ctx context.Context, categoryID, linkID string, update LinkUpdate) error {
	categoryID = strings.TrimSpace(categoryID)
	linkID = strings.TrimSpace(linkID)
	if categoryID == "" {
		return model.NewValidationError("categoryId", "Category ID is required")
	}
	if linkID == "" {
		return model.NewValidationError("linkId", "Link ID is required")
	}
	if err := s.cleanLinkUpdate(&update); err != nil {
		return err
	}

	return s.mutate(ctx, "update_link", func(doc *model.SidebarDocument) (*model.SidebarDocument, error) {
		ci, li, err := findLink(doc, categoryID, linkID)
		if err != nil {
			return nil, err
		}
		l := &doc.Categories[ci].Links[li]
		if update.Title != nil {
			l.Title = *update.Title
		}
		if update.URL != nil {
			l.URL = *update.URL
		}
		if update.Icon != nil {
			l.Icon = *update.Icon
		}
		if update.Description != nil {
			l.Description = *update.Description
		}
		return doc, nil
	})
}

// DeleteLink はカテゴリからリンクを削除する。
func (s *Store) DeleteLink(ctx context.Context, categoryID, linkID string) error {
	categoryID = strings.TrimSpace(categoryID)
	linkID = strings.TrimSpace(linkID)
	if categoryID == "" {
		return model.NewValidationError("categoryId", "Category ID is required")
	}
	if linkID == "" {
		return model.NewValidationError("linkId", "Link ID is required")
	}

	return s.mutate(ctx, "delete_link", func(doc *model.SidebarDocument) (*model.SidebarDocument, error) {
		ci, li, err := findLink(doc, categoryID, linkID)
		if err != nil {
			return nil, err
		}
		links := doc.Categories[ci].Links
		doc.Categories[ci].Links = append(links[:li], links[li+1:]...)
		return doc, nil
	})
}

// mutate は読み取り→変更→書き戻しを楽観的トランザクションとして実行する。
// fnには読み取ったドキュメントのコピー（未作成ならnil）が渡される。
func (s *Store) mutate(ctx context.Context, op string, fn func(doc *model.SidebarDocument) (*model.SidebarDocument, error)) error {
	var newVersion int
	err := s.kv.Atomic(ctx, sidebarKey, func(tx *kv.Tx) error {
		var current model.SidebarDocument
		found, err := tx.Get(ctx, sidebarKey, &current)
		if err != nil {
			return fmt.Errorf("failed to fetch existing sidebar data: %w", err)
		}
		var doc *model.SidebarDocument
		if found {
			doc = current.Clone()
		}

		next, err := fn(doc)
		if err != nil {
			return err
		}
		newVersion = next.Version + 1
		return tx.Commit(ctx, kv.SetOp(sidebarKey, s.stamp(next)))
	})
	if err != nil {
		return err
	}
	s.written(op, newVersion)
	return nil
}

// stamp は書き込み用のコピーを作り、Versionを1増やしLastUpdatedを現在時刻にする。
func (s *Store) stamp(doc *model.SidebarDocument) *model.SidebarDocument {
	out := doc.Clone()
	out.Version = doc.Version + 1
	now := s.now().UTC()
	out.LastUpdated = &now
	if out.Categories == nil {
		out.Categories = []model.SidebarCategory{}
	}
	for i := range out.Categories {
		if out.Categories[i].Links == nil {
			out.Categories[i].Links = []model.SidebarLink{}
		}
	}
	return out
}

func (s *Store) written(op string, version int) {
	s.recorder.RecordSidebarWrite(op)
	slog.Info("サイドバーを更新しました",
		slog.String("op", op),
		slog.Int("version", version),
	)
}

func findCategory(doc *model.SidebarDocument, categoryID string) (int, error) {
	if doc == nil {
		return -1, model.NewNotFoundError(sidebarKey, "Sidebar data not found")
	}
	idx := doc.CategoryIndex(categoryID)
	if idx < 0 {
		return -1, model.NewNotFoundError(categoryID,
			fmt.Sprintf("Category with ID '%s' not found", categoryID))
	}
	return idx, nil
}

func findLink(doc *model.SidebarDocument, categoryID, linkID string) (int, int, error) {
	ci, err := findCategory(doc, categoryID)
	if err != nil {
		return -1, -1, err
	}
	li := doc.Categories[ci].LinkIndex(linkID)
	if li < 0 {
		return -1, -1, model.NewNotFoundError(linkID,
			fmt.Sprintf("Link with ID '%s' not found in category '%s'", linkID, categoryID))
	}
	return ci, li, nil
}
