package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はサイドバーのタイトル・説明・アイコン名などのプレーンテキストを無害化する。
type TextSanitizer interface {
	// SanitizeText はHTMLタグを全て除去し、前後の空白を取り除いたテキストを返す。
	// 同一入力に対して常に同一出力を返す。
	SanitizeText(s string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// maxSanitizePasses は多重にエスケープされた入力を剥がす回数の上限。
const maxSanitizePasses = 8

// SanitizeText はHTMLタグを除去したテキストを返す。
// StrictPolicyがエスケープした実体参照（&amp; など）は元の文字に戻す。
// 実体参照を戻すとタグが現れる入力（&lt;img&gt; など）があるため、出力が変わらなくなるまで繰り返す。
// 上限回数で収束しない場合はエスケープされたままの文字列を返す。
// 出力はJSONとして返され、描画時にエスケープされる。
func (s *textSanitizer) SanitizeText(in string) string {
	if in == "" {
		return ""
	}
	out := in
	for i := 0; i < maxSanitizePasses; i++ {
		next := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(out)))
		if next == out {
			return out
		}
		out = next
	}
	return strings.TrimSpace(s.policy.Sanitize(out))
}
