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
// サービス層・ミドルウェア・ワーカーから利用する。
type MetricsCollector interface {
	RecordRegistration()
	RecordLogin()
	RecordTokenRefresh()
	RecordOAuthLogin(isNewUser bool)
	RecordEnrollment()
	RecordSessionCompleted()
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordRatingsRefreshed(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations     prometheus.Counter
	logins            prometheus.Counter
	tokenRefreshes    prometheus.Counter
	oauthLogins       *prometheus.CounterVec
	enrollments       prometheus.Counter
	sessionsCompleted prometheus.Counter
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
	ratingsRefreshed  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursehub_registrations_total",
			Help: "ユーザー登録の合計数",
		}),
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursehub_logins_total",
			Help: "ログイン成功の合計数",
		}),
		tokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursehub_token_refreshes_total",
			Help: "アクセストークン再発行の合計数",
		}),
		oauthLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursehub_oauth_logins_total",
			Help: "OAuthログインの合計数（新規/既存ユーザー別）",
		}, []string{"new_user"}),
		enrollments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursehub_enrollments_total",
			Help: "受講登録の合計数",
		}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursehub_sessions_completed_total",
			Help: "レッスン完了マークの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursehub_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coursehub_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		ratingsRefreshed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursehub_ratings_refreshed_total",
			Help: "平均評価が再集計されたコースの合計数",
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.tokenRefreshes,
		c.oauthLogins,
		c.enrollments,
		c.sessionsCompleted,
		c.httpStatus,
		c.requestLatency,
		c.ratingsRefreshed,
	)

	return c
}

// RecordRegistration はユーザー登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordLogin はログイン成功を記録する。
func (c *Collector) RecordLogin() {
	c.logins.Inc()
}

// RecordTokenRefresh はアクセストークン再発行を記録する。
func (c *Collector) RecordTokenRefresh() {
	c.tokenRefreshes.Inc()
}

// RecordOAuthLogin はOAuthログインを新規/既存ユーザー別に記録する。
func (c *Collector) RecordOAuthLogin(isNewUser bool) {
	c.oauthLogins.WithLabelValues(strconv.FormatBool(isNewUser)).Inc()
}

// RecordEnrollment は受講登録を記録する。
func (c *Collector) RecordEnrollment() {
	c.enrollments.Inc()
}

// RecordSessionCompleted はレッスン完了マークを記録する。
func (c *Collector) RecordSessionCompleted() {
	c.sessionsCompleted.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordRatingsRefreshed は平均評価の再集計件数を記録する。
func (c *Collector) RecordRatingsRefreshed(count int64) {
	c.ratingsRefreshed.Add(float64(count))
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
