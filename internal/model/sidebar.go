package model

import "time"

// SidebarLink はサイドバーの1リンクを表す。
// IDは所属カテゴリ内で一意。
type SidebarLink struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
}

// SidebarCategory はリンクをまとめるカテゴリを表す。
// Linksの順序はそのまま表示順になる。
type SidebarCategory struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Icon      string        `json:"icon,omitempty"`
	Collapsed bool          `json:"collapsed,omitempty"`
	Links     []SidebarLink `json:"links"`
}

// SidebarDocument はサイドバー全体を表すシングルトンドキュメント。
// 書き込みのたびにVersionが1増え、LastUpdatedが更新される。
type SidebarDocument struct {
	Categories  []SidebarCategory `json:"categories"`
	Version     int               `json:"version"`
	LastUpdated *time.Time        `json:"lastUpdated,omitempty"`
}

// Clone はドキュメントのディープコピーを返す。
// 変更はコピーに対して行い、元のドキュメントは変更しない。
func (d *SidebarDocument) Clone() *SidebarDocument {
	if d == nil {
		return nil
	}
	out := &SidebarDocument{
		Version:    d.Version,
		Categories: make([]SidebarCategory, len(d.Categories)),
	}
	if d.LastUpdated != nil {
		t := *d.LastUpdated
		out.LastUpdated = &t
	}
	for i, c := range d.Categories {
		c.Links = append([]SidebarLink{}, c.Links...)
		out.Categories[i] = c
	}
	return out
}

// CategoryIndex は指定IDのカテゴリの位置を返す。見つからない場合は-1。
func (d *SidebarDocument) CategoryIndex(id string) int {
	for i, c := range d.Categories {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// LinkIndex は指定IDのリンクの位置を返す。見つからない場合は-1。
func (c *SidebarCategory) LinkIndex(id string) int {
	for i, l := range c.Links {
		if l.ID == id {
			return i
		}
	}
	return -1
}
