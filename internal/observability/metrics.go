package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quakesync"

// Run outcomes recorded on ETLRuns.
const (
	OutcomeSuccess       = "success"
	OutcomeUpstreamError = "upstream_error"
	OutcomeFetchError    = "fetch_error"
	OutcomePersistError  = "persist_error"
)

// Metrics holds the Prometheus collectors for ingestion runs and the HTTP surface.
type Metrics struct {
	ETLRuns          *prometheus.CounterVec // labels: outcome={success,upstream_error,fetch_error,persist_error}
	FeaturesUpserted prometheus.Counter
	ETLRunDuration   prometheus.Histogram

	HTTPRequests *prometheus.CounterVec // labels: path, status
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ETLRuns,
		m.FeaturesUpserted,
		m.ETLRunDuration,
		m.HTTPRequests,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests
// can build as many instances as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ETLRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "etl_runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		FeaturesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "etl_features_upserted_total",
			Help:      "Feature rows written by ingestion runs.",
		}),
		ETLRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "etl_run_duration_seconds",
			Help:      "Duration of a complete fetch-transform-persist run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Handled HTTP requests by path and status code.",
		}, []string{"path", "status"}),
	}
}
