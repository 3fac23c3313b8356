package sidebar

import (
	"strings"

	"github.com/hitoshi/groupdash/internal/model"
)

// DefaultDocument は新規インストール時に書き込むサイドバーを返す。
// 呼び出しごとに新しい値を返すため、呼び出し側で変更してよい。
func DefaultDocument() *model.SidebarDocument {
	return &model.SidebarDocument{
		Version: 1,
		Categories: []model.SidebarCategory{
			{
				ID:    "general",
				Title: "General",
				Icon:  "Home",
				Links: []model.SidebarLink{
					{ID: "dashboard", Title: "Dashboard", URL: "/", Icon: "LayoutDashboard"},
					{ID: "calendar", Title: "Calendar", URL: "/calendar", Icon: "Calendar"},
				},
			},
			{
				ID:    "resources",
				Title: "Resources",
				Icon:  "FileText",
				Links: []model.SidebarLink{
					{ID: "group-info", Title: "Group Information", URL: "/resources/group-info", Icon: "Info"},
					{ID: "routes", Title: "Running Routes", URL: "/resources/routes", Icon: "MapPin"},
				},
			},
		},
	}
}

// Slugify はタイトルからIDを導出する。小文字化し、空白の連続を "-" に置き換える。
func Slugify(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), "-")
}
