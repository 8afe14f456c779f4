package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics contains Prometheus metrics for the cache layer.
type CacheMetrics struct {
	Hits          prometheus.Counter
	Misses        prometheus.Counter
	Errors        *prometheus.CounterVec
	Invalidations prometheus.Counter
}

// NewCacheMetrics creates and registers cache layer metrics.
func NewCacheMetrics(namespace string) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
		),
		Misses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "errors_total",
				Help:      "Total number of cache backend errors, degraded to misses",
			},
			[]string{"operation"},
		),
		Invalidations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "invalidated_keys_total",
				Help:      "Total number of keys removed by prefix invalidation",
			},
		),
	}

	MustRegister(
		m.Hits,
		m.Misses,
		m.Errors,
		m.Invalidations,
	)

	return m
}
