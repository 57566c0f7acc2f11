// Package metrics 提供 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 发送结果标签
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
	OutcomeReset    = "reset"
	OutcomeCanceled = "canceled"
)

// Client 指标
var (
	// 传输指标
	ClientSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quasihttp_client_sends_total",
		Help: "Total client sends by outcome",
	}, []string{"outcome", "mode"}) // mode: connection, bypass

	ClientActiveTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quasihttp_client_active_transfers",
		Help: "Number of in-flight transfers",
	})

	ClientSendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quasihttp_client_send_duration_seconds",
		Help:    "Send duration until the transfer settles",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	ClientResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quasihttp_client_resets_total",
		Help: "Total client resets",
	})

	ClientResetTransfers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quasihttp_client_reset_transfers_total",
		Help: "Total transfers cancelled by reset",
	})

	// 头部帧大小
	HeaderFrameBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quasihttp_header_frame_bytes",
		Help:    "Encoded header frame size",
		Buckets: []float64{64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 65535},
	}, []string{"direction"}) // sent, received
)

// Server 指标
var (
	ServerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quasihttp_server_requests_total",
		Help: "Total requests served by status class",
	}, []string{"status"})

	ServerRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quasihttp_server_request_duration_seconds",
		Help:    "Request processing duration",
		Buckets: prometheus.DefBuckets,
	})

	ServerConnectionAborts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quasihttp_server_connection_aborts_total",
		Help: "Connections aborted before a response was written",
	}, []string{"reason"})

	ServerActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quasihttp_server_active_connections",
		Help: "Number of connections being served",
	})
)

// StatusClass 将状态码归类为 2xx/4xx/5xx 等标签
func StatusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}
