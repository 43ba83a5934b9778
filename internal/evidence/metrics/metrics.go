package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for evidence gathering.
type Metrics struct {
	// Lookup latencies by source
	LookupLatency *prometheus.HistogramVec

	// Outcomes by source and status (found, not_found, error)
	Outcomes *prometheus.CounterVec

	// Failures by source and error category
	Failures *prometheus.CounterVec

	// Retries by source
	Retries *prometheus.CounterVec

	// Cache lookups by source and result (hit, miss, error)
	CacheLookups *prometheus.CounterVec
}

// New registers evidence metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LookupLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diligence_evidence_lookup_duration_seconds",
			Help:    "Duration of evidence source lookups including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"source"}),

		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diligence_evidence_outcomes_total",
			Help: "Evidence task outcomes by source and status",
		}, []string{"source", "status"}),

		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diligence_evidence_failures_total",
			Help: "Failed evidence tasks by source and error category",
		}, []string{"source", "category"}),

		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diligence_evidence_retries_total",
			Help: "Evidence lookup retries by source",
		}, []string{"source"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diligence_evidence_cache_lookups_total",
			Help: "Evidence cache lookups by source and result",
		}, []string{"source", "result"}),
	}
}

// ObserveLookup records one finished task.
func (m *Metrics) ObserveLookup(source, status string, d time.Duration) {
	if m != nil {
		m.LookupLatency.WithLabelValues(source).Observe(d.Seconds())
		m.Outcomes.WithLabelValues(source, status).Inc()
	}
}

// IncrementFailure records a failed task by category.
func (m *Metrics) IncrementFailure(source, category string) {
	if m != nil {
		m.Failures.WithLabelValues(source, category).Inc()
	}
}

// IncrementRetry records a retried lookup attempt.
func (m *Metrics) IncrementRetry(source string) {
	if m != nil {
		m.Retries.WithLabelValues(source).Inc()
	}
}

// IncrementCache records a cache lookup result.
func (m *Metrics) IncrementCache(source, result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(source, result).Inc()
	}
}
