package metrics

import (
	"time"

	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics implements the core observer on a prometheus registerer.
type LedgerMetrics struct {
	uowTotal      *prometheus.CounterVec
	uowDuration   *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	auditEvents   *prometheus.CounterVec
	alertFailures prometheus.Counter
	rateLookups   *prometheus.CounterVec
}

var _ portssvc.Observer = (*LedgerMetrics)(nil)

// NewLedgerMetrics registers the ledger collectors on reg. A nil reg yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		uowTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_uow_total",
			Help: "Units of work by operation and outcome.",
		}, []string{"operation", "outcome"}),
		uowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_uow_duration_seconds",
			Help:    "Wall time of units of work including retries.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_uow_retries_total",
			Help: "Retries after a write conflict.",
		}, []string{"operation"}),
		auditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_audit_events_total",
			Help: "Audit events appended by severity.",
		}, []string{"severity"}),
		alertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_alert_delivery_failures_total",
			Help: "Alerts the sink refused.",
		}),
		rateLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_rate_cache_lookups_total",
			Help: "Exchange rate cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.uowTotal, m.uowDuration, m.retries, m.auditEvents, m.alertFailures, m.rateLookups)
	return m
}

func (m *LedgerMetrics) ObserveUoW(operation, outcome string, elapsed time.Duration) {
	if m == nil || m.uowTotal == nil {
		return
	}
	operation = normalizeLabel(operation)
	m.uowTotal.WithLabelValues(operation, normalizeLabel(outcome)).Inc()
	m.uowDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *LedgerMetrics) ObserveRetry(operation string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *LedgerMetrics) ObserveAuditEvent(severity string) {
	if m == nil || m.auditEvents == nil {
		return
	}
	m.auditEvents.WithLabelValues(normalizeLabel(severity)).Inc()
}

func (m *LedgerMetrics) ObserveAlertFailure() {
	if m == nil || m.alertFailures == nil {
		return
	}
	m.alertFailures.Inc()
}

func (m *LedgerMetrics) ObserveRateLookup(result string) {
	if m == nil || m.rateLookups == nil {
		return
	}
	m.rateLookups.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
