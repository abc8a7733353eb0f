package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskhub"

// Metrics holds the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	submissions        *prometheus.CounterVec
	auditTransitions   *prometheus.CounterVec
	billsPosted        *prometheus.CounterVec
	settlementFailures *prometheus.CounterVec
	statusFlips        *prometheus.CounterVec
	statusJobRuns      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "attempts_total",
			Help:      "Submit calls by outcome.",
		}, []string{"result"}),
		auditTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "transitions_total",
			Help:      "Submissions moved by batch audit calls.",
		}, []string{"stage", "action"}),
		billsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "bills_posted_total",
			Help:      "Ledger rows appended by bill type.",
		}, []string{"bill_type"}),
		settlementFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "failures_total",
			Help:      "Per-submission failures during batch approval.",
		}, []string{"step"}),
		statusFlips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_status_flips_total",
			Help:      "Tasks moved by the status job.",
		}, []string{"to"}),
		statusJobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Status job runs by outcome.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.submissions,
		m.auditTransitions,
		m.billsPosted,
		m.settlementFailures,
		m.statusFlips,
		m.statusJobRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordSubmission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(label(result)).Inc()
}

func (m *Metrics) RecordAuditTransition(stage, action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.auditTransitions.WithLabelValues(stage, action).Add(float64(n))
}

func (m *Metrics) RecordBill(billType string) {
	if m == nil {
		return
	}
	m.billsPosted.WithLabelValues(billType).Inc()
}

func (m *Metrics) RecordSettlementFailure(step string) {
	if m == nil {
		return
	}
	m.settlementFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) RecordStatusFlips(to string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.statusFlips.WithLabelValues(to).Add(float64(n))
}

func (m *Metrics) RecordStatusJobRun(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.statusJobRuns.WithLabelValues(result).Inc()
}

func label(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s)
}
