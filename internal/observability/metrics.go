package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "covid_api"

// Metrics holds the Prometheus counters and histograms for the API service.
type Metrics struct {
	// HTTP metrics.
	HTTPRequests *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration *prometheus.HistogramVec // labels: method, route

	// Cache metrics.
	CacheLookups *prometheus.CounterVec // labels: namespace, result={hit,miss,bypass}
	CacheErrors  *prometheus.CounterVec // labels: op={get,set,encode,decode}

	// Warehouse metrics.
	WarehouseQueries  *prometheus.CounterVec   // labels: op={fetch,execute}, outcome={success,error}
	WarehouseDuration *prometheus.HistogramVec // labels: op

	// Comment metrics.
	CommentsInserted prometheus.Counter
	EventsPublished  *prometheus.CounterVec // labels: outcome={success,error}

	// Analytics metrics.
	AnalyticsDuration *prometheus.HistogramVec // labels: model={kmeans,sarima}
}

func newMetrics() *Metrics {
	return &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Absorbed cache failures by operation.",
		}, []string{"op"}),
		WarehouseQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warehouse_queries_total",
			Help:      "Warehouse statements by operation and outcome.",
		}, []string{"op", "outcome"}),
		WarehouseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "warehouse_query_duration_seconds",
			Help:      "Warehouse round trip including connect and close.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		CommentsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_inserted_total",
			Help:      "Comments written to the document store.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comment_events_published_total",
			Help:      "Comment events written to Kafka by outcome.",
		}, []string{"outcome"}),
		AnalyticsDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analytics_duration_seconds",
			Help:      "Model fit duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"model"}),
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.CacheLookups,
		m.CacheErrors,
		m.WarehouseQueries,
		m.WarehouseDuration,
		m.CommentsInserted,
		m.EventsPublished,
		m.AnalyticsDuration,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
