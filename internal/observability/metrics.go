package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the aggregation engine.
type Metrics struct {
	registry *prometheus.Registry

	// Per-source adapter calls.
	SourceQueries  *prometheus.CounterVec
	SourceDuration *prometheus.HistogramVec
	SourceUp       *prometheus.GaugeVec

	// Aggregated query path.
	QueriesTotal  *prometheus.CounterVec
	BulkBatchSize prometheus.Histogram

	// Result cache.
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewMetrics creates the metric set on its own registry so repeated
// construction (tests, restarts) never collides.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	namespace := "threatlens"

	return &Metrics{
		registry: registry,
		SourceQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_queries_total",
				Help:      "Adapter calls by source and outcome",
			},
			[]string{"source", "status"},
		),
		SourceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_query_duration_seconds",
				Help:      "Adapter call duration by source",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"source"},
		),
		SourceUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "source_up",
				Help:      "Last connectivity probe result (1=reachable)",
			},
			[]string{"source"},
		),
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Aggregated queries by outcome",
			},
			[]string{"status"},
		),
		BulkBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bulk_batch_size",
				Help:      "Number of queries per bulk request",
				Buckets:   prometheus.LinearBuckets(10, 10, 10),
			},
		),
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Result cache hits",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Result cache misses",
			},
		),
	}
}

// Handler exposes the registry for a /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
