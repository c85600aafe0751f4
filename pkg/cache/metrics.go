package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tallyhq/ledgergate/errors"
)

// cacheMetrics holds Prometheus metrics for cache operations.
// All recorder methods are nil-safe so call sites need no guards.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	deletes   prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

// maybeNewCacheMetrics creates and registers cache metrics when the options
// carry a registry; otherwise it returns nil (recorders no-op on nil).
func maybeNewCacheMetrics[V any](opts *cacheOptions[V]) (*cacheMetrics, error) {
	if opts.metricsReg == nil || opts.metricsPrefix == "" {
		return nil, nil
	}

	prefix := opts.metricsPrefix
	m := &cacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ledgergate",
			Subsystem:   "cache",
			Name:        "hits_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ledgergate",
			Subsystem:   "cache",
			Name:        "misses_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of cache misses",
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ledgergate",
			Subsystem:   "cache",
			Name:        "sets_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of cache set operations",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ledgergate",
			Subsystem:   "cache",
			Name:        "deletes_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of cache delete operations",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ledgergate",
			Subsystem:   "cache",
			Name:        "evictions_total",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Total number of cache evictions",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ledgergate",
			Subsystem:   "cache",
			Name:        "size",
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        "Current number of entries in cache",
		}),
	}

	reg := opts.metricsReg
	if err := reg.RegisterCounter(prefix, "cache_hits", m.hits); err != nil {
		return nil, errors.WrapTransient(err, "cache", "maybeNewCacheMetrics", "metrics registration")
	}
	if err := reg.RegisterCounter(prefix, "cache_misses", m.misses); err != nil {
		return nil, errors.WrapTransient(err, "cache", "maybeNewCacheMetrics", "metrics registration")
	}
	if err := reg.RegisterCounter(prefix, "cache_sets", m.sets); err != nil {
		return nil, errors.WrapTransient(err, "cache", "maybeNewCacheMetrics", "metrics registration")
	}
	if err := reg.RegisterCounter(prefix, "cache_deletes", m.deletes); err != nil {
		return nil, errors.WrapTransient(err, "cache", "maybeNewCacheMetrics", "metrics registration")
	}
	if err := reg.RegisterCounter(prefix, "cache_evictions", m.evictions); err != nil {
		return nil, errors.WrapTransient(err, "cache", "maybeNewCacheMetrics", "metrics registration")
	}
	if err := reg.RegisterGauge(prefix, "cache_size", m.size); err != nil {
		return nil, errors.WrapTransient(err, "cache", "maybeNewCacheMetrics", "metrics registration")
	}

	return m, nil
}

func (m *cacheMetrics) recordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *cacheMetrics) recordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *cacheMetrics) recordSet() {
	if m != nil {
		m.sets.Inc()
	}
}

func (m *cacheMetrics) recordDelete() {
	if m != nil {
		m.deletes.Inc()
	}
}

func (m *cacheMetrics) recordEviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *cacheMetrics) updateSize(size int) {
	if m != nil {
		m.size.Set(float64(size))
	}
}
