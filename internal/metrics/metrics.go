// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// HTTPクライアントや認証サービスから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestFailure(reason string)
	RecordRequestLatency(duration time.Duration)
	RecordRateLimitWait(duration time.Duration)
	RecordForcedLogout()
	RecordLogin(result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus     *prometheus.CounterVec
	requestFail    *prometheus.CounterVec
	requestLatency prometheus.Histogram
	rateLimitWait  prometheus.Histogram
	forcedLogouts  prometheus.Counter
	loginAttempts  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_request_fail_total",
			Help: "レスポンスを受け取れなかったリクエストの合計数",
		}, []string{"reason"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskman_request_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimitWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskman_rate_limit_wait_seconds",
			Help:    "レート制限による送信待ち時間（秒）",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		forcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_forced_logout_total",
			Help: "401レスポンスによる強制ログアウトの合計数",
		}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_login_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestFail,
		c.requestLatency,
		c.rateLimitWait,
		c.forcedLogouts,
		c.loginAttempts,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestFailure はネットワークエラー等でレスポンスを受け取れなかったことを記録する。
func (c *Collector) RecordRequestFailure(reason string) {
	c.requestFail.WithLabelValues(reason).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordRateLimitWait はレート制限の待ち時間を記録する。
func (c *Collector) RecordRateLimitWait(duration time.Duration) {
	c.rateLimitWait.Observe(duration.Seconds())
}

// RecordForcedLogout は401による強制ログアウトを記録する。
func (c *Collector) RecordForcedLogout() {
	c.forcedLogouts.Inc()
}

// RecordLogin はログイン試行の結果（success, rejected, malformed）を記録する。
func (c *Collector) RecordLogin(result string) {
	c.loginAttempts.WithLabelValues(result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクスが不要なテスト等で使用する。
type Nop struct{}

func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestFailure(string)        {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordRateLimitWait(time.Duration)  {}
func (Nop) RecordForcedLogout()                {}
func (Nop) RecordLogin(string)                 {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
