package storefront

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for storefront controllers. One
// instance is shared by every controller of a process.
type Metrics struct {
	Registry        *prometheus.Registry
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	FailuresTotal   *prometheus.CounterVec
	StaleTotal      *prometheus.CounterVec
	CategoryLookups *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	queries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_queries_total",
			Help: "Total catalog queries issued by storefront controllers.",
		},
		[]string{"kind"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_query_duration_seconds",
			Help:    "Catalog query latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_fetch_failures_total",
			Help: "Catalog queries that failed and fell back to an empty result.",
		},
		[]string{"kind", "error_type"},
	)
	stale := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_stale_responses_total",
			Help: "Responses discarded because the selection changed while they were in flight.",
		},
		[]string{"kind"},
	)
	lookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_category_lookups_total",
			Help: "Category slug resolutions by outcome.",
		},
		[]string{"result"},
	)

	registry.MustRegister(queries, duration, failures, stale, lookups)

	return &Metrics{
		Registry:        registry,
		QueriesTotal:    queries,
		QueryDuration:   duration,
		FailuresTotal:   failures,
		StaleTotal:      stale,
		CategoryLookups: lookups,
	}
}

// IncQuery counts an issued query.
func (m *Metrics) IncQuery(kind string) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(kind).Inc()
}

// ObserveDuration records a query latency.
func (m *Metrics) ObserveDuration(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// IncFailure counts a failed query by error class.
func (m *Metrics) IncFailure(kind, errorType string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(kind, errorType).Inc()
}

// IncStale counts a discarded response.
func (m *Metrics) IncStale(kind string) {
	if m == nil {
		return
	}
	m.StaleTotal.WithLabelValues(kind).Inc()
}

// IncLookup counts a category resolution outcome.
func (m *Metrics) IncLookup(result string) {
	if m == nil {
		return
	}
	m.CategoryLookups.WithLabelValues(result).Inc()
}
