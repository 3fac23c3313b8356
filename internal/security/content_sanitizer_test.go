package security

import (
	"strings"
	"testing"
)

func TestSanitizeText(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "Running Routes", "Running Routes"},
		{"空文字列", "", ""},
		{"前後の空白を除去", "  General  ", "General"},
		{"タグを除去", "<b>Bold</b> title", "Bold title"},
		{"scriptタグを内容ごと除去", "Safe<script>alert(1)</script>", "Safe"},
		{"アンパサンドは保持", "Q&A", "Q&A"},
		{"日本語", "カレンダー", "カレンダー"},
		{"イベント属性付きタグ", `<img src=x onerror="alert(1)">Icon`, "Icon"},
		{"実体参照で書かれたタグも除去", "&lt;img src=x onerror=alert(1)&gt;Docs", "Docs"},
		{"二重エスケープされたタグも除去", "&amp;lt;b&amp;gt;Title", "Title"},
		{"実体参照の文字は元に戻す", "Tom &amp; Jerry", "Tom & Jerry"},
		{"比較記号は保持", "1 &lt; 2", "1 < 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.SanitizeText(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeText_Idempotent は冪等性を検証する。
func TestSanitizeText_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()
	inputs := []string{
		"Group <i>Information</i>",
		"Tom & Jerry",
		"<a href='javascript:alert(1)'>click</a>",
		"&lt;img src=x onerror=alert(1)&gt;Docs",
		"&amp;lt;script&amp;gt;alert(1)&amp;lt;/script&amp;gt;News",
	}
	for _, in := range inputs {
		once := sanitizer.SanitizeText(in)
		twice := sanitizer.SanitizeText(once)
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
		if strings.Contains(once, "<") {
			t.Errorf("tag survived: %q", once)
		}
	}
}

func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizer = NewTextSanitizer()
}
