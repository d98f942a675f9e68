// Package metrics 定义 Prometheus 指标
// 覆盖 HTTP 请求、实时通道和会话生命周期
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudconnect_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudconnect_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 实时通道指标
	WSChannelsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudconnect_ws_channels_active",
			Help: "Number of open socket channels",
		},
	)

	WSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudconnect_ws_messages_total",
			Help: "Inbound socket messages by type",
		},
		[]string{"type"},
	)

	// 会话指标
	SessionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudconnect_sessions_created_total",
			Help: "Sessions created by protocol",
		},
		[]string{"protocol"},
	)

	SessionsTerminatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudconnect_sessions_terminated_total",
			Help: "Sessions moved to terminated",
		},
	)
)

// RecordHTTPRequest 记录一次 HTTP 请求
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackChannel 通道打开时传 true，关闭时传 false
func TrackChannel(open bool) {
	if open {
		WSChannelsActive.Inc()
	} else {
		WSChannelsActive.Dec()
	}
}

// RecordWSMessage 记录一条入站消息
func RecordWSMessage(msgType string) {
	WSMessagesTotal.WithLabelValues(msgType).Inc()
}

// RecordSessionCreated 记录会话创建
func RecordSessionCreated(protocol string) {
	SessionsCreatedTotal.WithLabelValues(protocol).Inc()
}

// RecordSessionTerminated 记录会话终止
func RecordSessionTerminated() {
	SessionsTerminatedTotal.Inc()
}
