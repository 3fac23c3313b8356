// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス収集のインターフェース。
// KVファサード、サイドバーストア、アクセスゲートから利用する。
type Recorder interface {
	RecordKVOperation(op string, result string, duration time.Duration)
	RecordSidebarWrite(op string)
	RecordAccessDecision(area string, allowed bool)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	kvOps          *prometheus.CounterVec
	kvLatency      *prometheus.HistogramVec
	sidebarWrites  *prometheus.CounterVec
	accessDecision *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		kvOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupdash_kv_operations_total",
			Help: "KV操作の合計数（操作種別・結果別）",
		}, []string{"op", "result"}),
		kvLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "groupdash_kv_latency_seconds",
			Help:    "KV操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		sidebarWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupdash_sidebar_writes_total",
			Help: "サイドバードキュメントの書き込み数",
		}, []string{"op"}),
		accessDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupdash_access_decisions_total",
			Help: "アクセス判定の合計数（エリア・結果別）",
		}, []string{"area", "decision"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "groupdash_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.kvOps,
		c.kvLatency,
		c.sidebarWrites,
		c.accessDecision,
		c.httpStatus,
	)

	return c
}

// RecordKVOperation はKV操作の結果とレイテンシを記録する。
func (c *Collector) RecordKVOperation(op string, result string, duration time.Duration) {
	c.kvOps.WithLabelValues(op, result).Inc()
	c.kvLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSidebarWrite はサイドバーの書き込みを記録する。
func (c *Collector) RecordSidebarWrite(op string) {
	c.sidebarWrites.WithLabelValues(op).Inc()
}

// RecordAccessDecision はアクセス判定の結果を記録する。
func (c *Collector) RecordAccessDecision(area string, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	c.accessDecision.WithLabelValues(area, decision).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないRecorder。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordKVOperation(string, string, time.Duration) {}
func (Nop) RecordSidebarWrite(string)                       {}
func (Nop) RecordAccessDecision(string, bool)               {}
func (Nop) RecordHTTPStatus(int)                            {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
