package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ServesMetrics はスクレイプでアプリケーションメトリクスが返ることを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSidebarWrite("set")
	c.RecordHTTPStatus(http.StatusForbidden)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, `groupdash_sidebar_writes_total{op="set"} 1`) {
		t.Error("response should contain groupdash_sidebar_writes_total metric")
	}
	if !strings.Contains(bodyStr, `groupdash_http_status_total{status_code="403"} 1`) {
		t.Error("response should contain groupdash_http_status_total metric")
	}
}
