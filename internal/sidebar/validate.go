package sidebar

import (
	"fmt"
	"strings"

	"github.com/hitoshi/groupdash/internal/model"
)

// cleanDocument はドキュメント全体を検証・無害化したコピーを返す。
func (s *Store) cleanDocument(doc *model.SidebarDocument) (*model.SidebarDocument, error) {
	out := &model.SidebarDocument{
		Version:    doc.Version,
		Categories: make([]model.SidebarCategory, 0, len(doc.Categories)),
	}
	seen := make(map[string]bool, len(doc.Categories))
	for _, c := range doc.Categories {
		cat, err := s.cleanCategory(c)
		if err != nil {
			return nil, err
		}
		if seen[cat.ID] {
			return nil, model.NewConflictError(cat.ID,
				fmt.Sprintf("Category with ID '%s' already exists", cat.ID))
		}
		seen[cat.ID] = true
		out.Categories = append(out.Categories, cat)
	}
	return out, nil
}

// cleanCategory はカテゴリの必須項目を検証し、テキストを無害化したコピーを返す。
func (s *Store) cleanCategory(c model.SidebarCategory) (model.SidebarCategory, error) {
	out := model.SidebarCategory{
		ID:        strings.TrimSpace(c.ID),
		Title:     s.sanitizer.SanitizeText(c.Title),
		Icon:      s.sanitizer.SanitizeText(c.Icon),
		Collapsed: c.Collapsed,
		Links:     make([]model.SidebarLink, 0, len(c.Links)),
	}
	if out.ID == "" {
		return out, model.NewValidationError("id", "Category ID is required")
	}
	if out.Title == "" {
		return out, model.NewValidationError("title", "Category title is required")
	}

	for _, l := range c.Links {
		link, err := s.cleanLink(l)
		if err != nil {
			return out, err
		}
		if out.LinkIndex(link.ID) >= 0 {
			return out, model.NewConflictError(link.ID,
				fmt.Sprintf("Link with ID '%s' already exists in category '%s'", link.ID, out.ID))
		}
		out.Links = append(out.Links, link)
	}
	return out, nil
}

// cleanLink はリンクの必須項目とURLを検証し、テキストを無害化したコピーを返す。
func (s *Store) cleanLink(l model.SidebarLink) (model.SidebarLink, error) {
	out := model.SidebarLink{
		ID:          strings.TrimSpace(l.ID),
		Title:       s.sanitizer.SanitizeText(l.Title),
		URL:         strings.TrimSpace(l.URL),
		Icon:        s.sanitizer.SanitizeText(l.Icon),
		Description: s.sanitizer.SanitizeText(l.Description),
	}
	if out.ID == "" {
		return out, model.NewValidationError("id", "Link ID is required")
	}
	if out.Title == "" {
		return out, model.NewValidationError("title", "Link title is required")
	}
	if out.URL == "" {
		return out, model.NewValidationError("url", "Link URL is required")
	}
	if err := s.validateURL(out.URL); err != nil {
		return out, err
	}
	return out, nil
}

// cleanLinkUpdate は部分更新の指定されたフィールドを検証・無害化する。
func (s *Store) cleanLinkUpdate(u *LinkUpdate) error {
	if u.Title != nil {
		title := s.sanitizer.SanitizeText(*u.Title)
		if title == "" {
			return model.NewValidationError("title", "Link title is required")
		}
		u.Title = &title
	}
	if u.URL != nil {
		url := strings.TrimSpace(*u.URL)
		if url == "" {
			return model.NewValidationError("url", "Link URL is required")
		}
		if err := s.validateURL(url); err != nil {
			return err
		}
		u.URL = &url
	}
	if u.Icon != nil {
		icon := s.sanitizer.SanitizeText(*u.Icon)
		u.Icon = &icon
	}
	if u.Description != nil {
		desc := s.sanitizer.SanitizeText(*u.Description)
		u.Description = &desc
	}
	return nil
}

func (s *Store) validateURL(raw string) error {
	if err := s.urls.ValidateLinkURL(raw); err != nil {
		return &model.StoreError{
			Kind:    model.KindValidation,
			Ident:   "url",
			Message: fmt.Sprintf("Invalid link URL '%s'", raw),
			Err:     err,
		}
	}
	return nil
}
