// Package metric provides the Prometheus metrics registry for ledgergate.
// Core pipeline metrics are registered at construction; components register
// their own series through the MetricsRegistrar interface.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core pipeline metrics (not business-specific).
type Metrics struct {
	// RequestsTotal counts GraphQL requests by operation name and outcome.
	RequestsTotal *prometheus.CounterVec

	// RejectionsTotal counts governance rejections by error code.
	RejectionsTotal *prometheus.CounterVec

	// RequestDuration observes end-to-end pipeline latency per operation.
	RequestDuration *prometheus.HistogramVec

	// CacheServedTotal counts responses served from the response cache.
	CacheServedTotal prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all core pipeline metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledgergate",
				Subsystem: "pipeline",
				Name:      "requests_total",
				Help:      "Total number of GraphQL requests processed",
			},
			[]string{"operation", "status"},
		),

		RejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledgergate",
				Subsystem: "pipeline",
				Name:      "rejections_total",
				Help:      "Total number of requests rejected before resolver execution",
			},
			[]string{"code"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ledgergate",
				Subsystem: "pipeline",
				Name:      "request_duration_seconds",
				Help:      "End-to-end request latency through the governance pipeline",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		CacheServedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ledgergate",
				Subsystem: "pipeline",
				Name:      "cache_served_total",
				Help:      "Total number of responses served from the response cache",
			},
		),
	}
}
