// Package http provides the HTTP transport adapter for the proxy.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for aisafegate.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ScanDecisions       *prometheus.CounterVec
	RateLimitRejections prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aisafegate",
				Name:      "requests_total",
				Help:      "Total number of proxied requests processed",
			},
			[]string{"method", "status"}, // method=POST, status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "aisafegate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets, // 5ms to 10s
			},
			[]string{"method"},
		),
		ScanDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aisafegate",
				Name:      "scan_decisions_total",
				Help:      "Scan decisions by direction and outcome",
			},
			[]string{"direction", "decision"}, // direction=input/output, decision=allow/warn/redact/block
		),
		RateLimitRejections: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "aisafegate",
				Name:      "rate_limit_rejections_total",
				Help:      "Requests rejected by the rate limiter",
			},
		),
	}
}

// RegisterRateLimitKeysGauge exposes the number of active rate limit
// buckets as a gauge sampled on scrape.
func RegisterRateLimitKeysGauge(reg prometheus.Registerer, size func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "aisafegate",
			Name:      "rate_limit_keys",
			Help:      "Number of active rate limit buckets",
		},
		func() float64 { return float64(size()) },
	))
}

// RegisterTelemetryDropsCounter exposes the telemetry drop count sampled
// on scrape.
func RegisterTelemetryDropsCounter(reg prometheus.Registerer, drops func() int64) {
	reg.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "aisafegate",
			Name:      "telemetry_drops_total",
			Help:      "Telemetry events dropped due to backpressure",
		},
		func() float64 { return float64(drops()) },
	))
}
