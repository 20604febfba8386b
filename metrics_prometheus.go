package promptcache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements CacheMetrics on top of prometheus collectors.
// Keys are deliberately not used as label values to keep cardinality
// bounded; per-key analysis belongs in logs.
type PrometheusMetrics struct {
	hits            *prometheus.CounterVec
	misses          prometheus.Counter
	errors          prometheus.Counter
	refreshDropped  prometheus.Counter
	upstreamLatency prometheus.Histogram
}

// NewPrometheusMetrics creates and registers the cache collectors on the
// given registerer (use prometheus.DefaultRegisterer for the global one).
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) (*PrometheusMetrics, error) {
	if namespace == "" {
		namespace = "promptcache"
	}

	m := &PrometheusMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Cache reads served from cached data, by entry status.",
		}, []string{"status"}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "misses_total",
			Help:      "Cache reads that required a synchronous upstream fetch.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Fetch, store and lock failures.",
		}),
		refreshDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_dropped_total",
			Help:      "Background refreshes discarded due to pool saturation.",
		}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_seconds",
			Help:      "Latency of upstream fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.hits, m.misses, m.errors, m.refreshDropped, m.upstreamLatency,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) RecordHit(key string, status string) {
	m.hits.WithLabelValues(status).Inc()
}

func (m *PrometheusMetrics) RecordMiss(key string) {
	m.misses.Inc()
}

func (m *PrometheusMetrics) RecordError(key string, err error) {
	m.errors.Inc()
}

func (m *PrometheusMetrics) RecordLatency(key string, duration time.Duration) {
	m.upstreamLatency.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordRefreshDropped(key string) {
	m.refreshDropped.Inc()
}
