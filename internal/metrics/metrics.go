// Package metrics provides Prometheus collectors for the ingestion pipeline
// and the search API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcome label values.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Record outcome label values.
const (
	RecordStored  = "stored"
	RecordSkipped = "skipped"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, so wiring metrics stays optional in tests and tools.
type Metrics struct {
	runsTotal          *prometheus.CounterVec
	runDurationSeconds prometheus.Histogram
	recordsTotal       *prometheus.CounterVec
	searchesTotal      prometheus.Counter
}

// New registers the service collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "companies_ingest_runs_total",
			Help: "Ingestion runs by terminal status.",
		}, []string{"status"}),
		runDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "companies_ingest_run_duration_seconds",
			Help:    "End-to-end duration of ingestion runs.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "companies_ingest_records_total",
			Help: "Records handled by the ingestion pipeline, by outcome.",
		}, []string{"result"}),
		searchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "companies_searches_total",
			Help: "Full-text search requests served.",
		}),
	}
}

// ObserveRun records one finished ingestion run.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDurationSeconds.Observe(d.Seconds())
}

// AddRecords counts n records with the given outcome.
func (m *Metrics) AddRecords(result string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.recordsTotal.WithLabelValues(result).Add(float64(n))
}

// IncSearches counts one served search request.
func (m *Metrics) IncSearches() {
	if m == nil {
		return
	}
	m.searchesTotal.Inc()
}
