// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// LinkGuard はサイドバーリンクURLの検証と、リンク死活確認用の安全なHTTPクライアントを提供する。
type LinkGuard interface {
	// ValidateLinkURL はサイドバーに保存できるURLかどうかを検証する。
	// "/" で始まるサイト内パス、またはホスト付きの http/https URL のみ許可する。
	ValidateLinkURL(rawURL string) error

	// ValidateProbeURL はサーバーからリクエストしてよいURLかを静的に検証する。
	// プライベートIP、ループバック、リンクローカル、localhost を拒否する。
	ValidateProbeURL(rawURL string) error

	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// 名前解決後のIPアドレスもDialer段階で検証される。
	NewSafeClient(timeout time.Duration) *http.Client
}

var allowedSchemes = []string{"http", "https"}

// blockedNetworks はプローブ先としてブロックするネットワーク範囲。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		// クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

type linkGuard struct{}

// NewLinkGuard はLinkGuardの新しいインスタンスを生成する。
func NewLinkGuard() *linkGuard {
	return &linkGuard{}
}

// ValidateLinkURL はサイドバーに保存できるURLかどうかを検証する。
func (g *linkGuard) ValidateLinkURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}
	if IsRelativeLink(rawURL) {
		if strings.ContainsAny(rawURL, " \t\r\n") {
			return fmt.Errorf("path must not contain whitespace: %q", rawURL)
		}
		return nil
	}

	parsed, err := parseAbsolute(rawURL)
	if err != nil {
		return err
	}
	if parsed.User != nil {
		return fmt.Errorf("credentials in URL are not allowed")
	}
	return nil
}

// ValidateProbeURL はサーバーからリクエストしてよいURLかを静的に検証する。
// DNS再バインディングは NewSafeClient のDialer側で防ぐ。
func (g *linkGuard) ValidateProbeURL(rawURL string) error {
	parsed, err := parseAbsolute(rawURL)
	if err != nil {
		return err
	}

	host := parsed.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
func (g *linkGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// IsRelativeLink はURLがサイト内パス（"/" 始まり、"//" 始まりではない）かを返す。
func IsRelativeLink(rawURL string) bool {
	return strings.HasPrefix(rawURL, "/") && !strings.HasPrefix(rawURL, "//")
}

func parseAbsolute(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, allowedSchemes)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("empty host in URL: %s", rawURL)
	}
	return parsed, nil
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
