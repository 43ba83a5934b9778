package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the investigation pipeline.
type Metrics struct {
	// Oracle call latency by operation (assess, classify) and result
	OracleLatency *prometheus.HistogramVec

	// Oracle failures by reason (timeout, transport, quota, ...)
	OracleFailures *prometheus.CounterVec

	// Oracle retries
	OracleRetries prometheus.Counter

	// Circuit breaker state (1 open, 0 closed)
	BreakerOpen prometheus.Gauge

	// Reports by outcome (parsed, fallback)
	Reports *prometheus.CounterVec

	// Reports by risk level
	RiskLevels *prometheus.CounterVec

	// End-to-end investigation duration
	InvestigationDuration prometheus.Histogram

	// Investigations rejected before any source work
	Rejected prometheus.Counter

	// Failed report writes
	PersistFailures prometheus.Counter
}

// New registers investigation metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OracleLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diligence_oracle_duration_seconds",
			Help:    "Duration of risk oracle calls including retries",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}, []string{"operation", "result"}),

		OracleFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diligence_oracle_failures_total",
			Help: "Failed oracle calls by reason",
		}, []string{"operation", "reason"}),

		OracleRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "diligence_oracle_retries_total",
			Help: "Retried oracle calls",
		}),

		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "diligence_oracle_circuit_open",
			Help: "Whether the oracle circuit breaker is open (1) or closed (0)",
		}),

		Reports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diligence_reports_total",
			Help: "Risk reports by outcome (parsed, fallback)",
		}, []string{"outcome"}),

		RiskLevels: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diligence_report_risk_levels_total",
			Help: "Risk reports by risk level",
		}, []string{"level"}),

		InvestigationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "diligence_investigation_duration_seconds",
			Help:    "End-to-end duration of completed investigations",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 180},
		}),

		Rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "diligence_investigations_rejected_total",
			Help: "Investigations rejected by request validation",
		}),

		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "diligence_report_persist_failures_total",
			Help: "Reports that could not be persisted",
		}),
	}
}

// ObserveOracle records one finished oracle call.
func (m *Metrics) ObserveOracle(operation, result string, d time.Duration) {
	if m != nil {
		m.OracleLatency.WithLabelValues(operation, result).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementOracleFailure(operation, reason string) {
	if m != nil {
		m.OracleFailures.WithLabelValues(operation, reason).Inc()
	}
}

func (m *Metrics) IncrementOracleRetry() {
	if m != nil {
		m.OracleRetries.Inc()
	}
}

// SetBreakerOpen tracks the breaker state.
func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}

// ObserveReport records a finished investigation.
func (m *Metrics) ObserveReport(fallback bool, level string, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "parsed"
	if fallback {
		outcome = "fallback"
	}
	m.Reports.WithLabelValues(outcome).Inc()
	m.RiskLevels.WithLabelValues(level).Inc()
	m.InvestigationDuration.Observe(d.Seconds())
}

func (m *Metrics) IncrementRejected() {
	if m != nil {
		m.Rejected.Inc()
	}
}

func (m *Metrics) IncrementPersistFailure() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}
