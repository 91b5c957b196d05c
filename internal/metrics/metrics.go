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
// ミドルウェアやハンドラー層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestDuration(duration time.Duration)
	RecordEntryCreated()
	RecordEntryUpdated()
	RecordEntryDeleted()
	RecordRegistration()
	RecordLogin()
	RecordAuthFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus      *prometheus.CounterVec
	requestDuration prometheus.Histogram
	entriesCreated  prometheus.Counter
	entriesUpdated  prometheus.Counter
	entriesDeleted  prometheus.Counter
	registrations   prometheus.Counter
	logins          prometheus.Counter
	authFailures    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hansei_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hansei_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		entriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hansei_entries_created_total",
			Help: "作成された記録の合計数",
		}),
		entriesUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hansei_entries_updated_total",
			Help: "更新された記録の合計数",
		}),
		entriesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hansei_entries_deleted_total",
			Help: "削除された記録の合計数",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hansei_registrations_total",
			Help: "ユーザー登録の合計数",
		}),
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hansei_logins_total",
			Help: "ログイン成功の合計数",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hansei_auth_failures_total",
			Help: "認証失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestDuration,
		c.entriesCreated,
		c.entriesUpdated,
		c.entriesDeleted,
		c.registrations,
		c.logins,
		c.authFailures,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestDuration はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestDuration(duration time.Duration) {
	c.requestDuration.Observe(duration.Seconds())
}

// RecordEntryCreated は記録の作成を記録する。
func (c *Collector) RecordEntryCreated() {
	c.entriesCreated.Inc()
}

// RecordEntryUpdated は記録の更新を記録する。
func (c *Collector) RecordEntryUpdated() {
	c.entriesUpdated.Inc()
}

// RecordEntryDeleted は記録の削除を記録する。
func (c *Collector) RecordEntryDeleted() {
	c.entriesDeleted.Inc()
}

// RecordRegistration はユーザー登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordLogin はログイン成功を記録する。
func (c *Collector) RecordLogin() {
	c.logins.Inc()
}

// RecordAuthFailure は認証失敗を記録する。
func (c *Collector) RecordAuthFailure() {
	c.authFailures.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
