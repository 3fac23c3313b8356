// Package linkcheck はサイドバーに登録された外部リンクの死活を確認する。
//
// サイト内パス（"/" 始まり）は確認対象外とし、外部URLのみ1件ずつ順番にGETする。
// 応答がHTMLの場合は <title> を抜き出して結果に含める。
package linkcheck

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/groupdash/internal/model"
	"github.com/hitoshi/groupdash/internal/security"
	"golang.org/x/net/html"
)

// maxBodySize はタイトル抽出のために読み込むレスポンスボディの上限。
const maxBodySize = 512 * 1024

const userAgent = "groupdash-linkcheck/1.0"

// Status はリンク確認の結果区分。
type Status string

const (
	StatusOK      Status = "ok"
	StatusBroken  Status = "broken"
	StatusSkipped Status = "skipped"
	StatusBlocked Status = "blocked"
	StatusError   Status = "error"
)

// Result は1リンクの確認結果。
type Result struct {
	CategoryID string `json:"categoryId"`
	LinkID     string `json:"linkId"`
	URL        string `json:"url"`
	Status     Status `json:"status"`
	StatusCode int    `json:"statusCode,omitempty"`
	PageTitle  string `json:"pageTitle,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Report はサイドバー全体の確認結果。
type Report struct {
	CheckedAt time.Time `json:"checkedAt"`
	Results   []Result  `json:"results"`
}

// ProbeValidator はリクエスト前のURL検証インターフェース。
type ProbeValidator interface {
	ValidateProbeURL(rawURL string) error
}

// Checker はリンクの死活確認を行う。
type Checker struct {
	client    *http.Client
	validator ProbeValidator
	now       func() time.Time
}

// NewChecker はCheckerを生成する。本番ではSSRF防止付きのクライアントを渡す。
func NewChecker(client *http.Client, validator ProbeValidator) *Checker {
	return &Checker{
		client:    client,
		validator: validator,
		now:       time.Now,
	}
}

// Check はドキュメント内の全リンクを表示順に確認する。
// ctxがキャンセルされた場合、残りのリンクはエラーとして記録される。
func (c *Checker) Check(ctx context.Context, doc *model.SidebarDocument) Report {
	report := Report{CheckedAt: c.now().UTC(), Results: []Result{}}
	if doc == nil {
		return report
	}

	for _, cat := range doc.Categories {
		for _, link := range cat.Links {
			r := c.probe(ctx, link.URL)
			r.CategoryID = cat.ID
			r.LinkID = link.ID
			report.Results = append(report.Results, r)
		}
	}

	broken := 0
	for _, r := range report.Results {
		if r.Status == StatusBroken || r.Status == StatusError {
			broken++
		}
	}
	slog.Info("リンク確認が完了しました",
		slog.Int("checked", len(report.Results)),
		slog.Int("broken", broken),
	)
	return report
}

func (c *Checker) probe(ctx context.Context, rawURL string) (r Result) {
	r.URL = rawURL
	if security.IsRelativeLink(rawURL) {
		r.Status = StatusSkipped
		return r
	}
	if err := c.validator.ValidateProbeURL(rawURL); err != nil {
		r.Status = StatusBlocked
		r.Error = err.Error()
		return r
	}

	start := c.now()
	defer func() { r.DurationMs = c.now().Sub(start).Milliseconds() }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		r.Status = StatusError
		r.Error = err.Error()
		return r
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("リンクの取得に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		r.Status = StatusError
		r.Error = err.Error()
		return r
	}
	defer resp.Body.Close()

	r.StatusCode = resp.StatusCode
	if resp.StatusCode >= http.StatusBadRequest {
		r.Status = StatusBroken
		return r
	}
	r.Status = StatusOK

	if isHTML(resp.Header.Get("Content-Type")) {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err == nil {
			r.PageTitle = ExtractTitle(body)
		}
	}
	return r
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// ExtractTitle はHTMLから最初の <title> のテキストを取り出す。
// <body> に到達した時点で探索を打ち切る。
func ExtractTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false
	var sb strings.Builder

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return normalizeSpace(sb.String())

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "title":
				inTitle = true
			case "body":
				return normalizeSpace(sb.String())
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if inTitle && string(tn) == "title" {
				return normalizeSpace(sb.String())
			}

		case html.TextToken:
			if inTitle {
				sb.Write(tokenizer.Text())
			}
		}
	}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
