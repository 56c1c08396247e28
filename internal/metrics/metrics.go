// Package metrics provides Prometheus counters for the governance pipeline.
//
// Each Metrics owns its registry, so several pipelines (or tests) can run in
// one process without duplicate-registration panics. All methods are safe on
// a nil *Metrics, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the governance pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// Approved decisions by governance level and profile
	Decisions *prometheus.CounterVec

	// Policy violations by kind
	Violations *prometheus.CounterVec

	// Ledger appends and gate rejections
	LedgerAppends    prometheus.Counter
	LedgerRejections *prometheus.CounterVec

	// Registry registrations by governance level
	Registrations *prometheus.CounterVec

	// Integrity verifications by outcome
	Verifications *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered on a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "windi_governance_decisions_total",
			Help: "Approved governance decisions by level and profile",
		}, []string{"level", "profile"}),

		Violations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "windi_policy_violations_total",
			Help: "Rejected requests by policy violation kind",
		}, []string{"kind"}),

		LedgerAppends: factory.NewCounter(prometheus.CounterOpts{
			Name: "windi_ledger_appends_total",
			Help: "Entries appended to the governance ledger",
		}),

		LedgerRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "windi_ledger_rejections_total",
			Help: "Events rejected by ledger gates by invariant kind",
		}, []string{"kind"}),

		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "windi_registry_registrations_total",
			Help: "Submissions registered by governance level",
		}, []string{"level"}),

		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "windi_integrity_verifications_total",
			Help: "Integrity verifications by outcome",
		}, []string{"outcome"}), // outcome: "valid", "not_sealed", "tamper_detected"
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Decision records an approved decision.
func (m *Metrics) Decision(level, profile string) {
	if m != nil {
		m.Decisions.WithLabelValues(level, profile).Inc()
	}
}

// Violation records a policy violation.
func (m *Metrics) Violation(kind string) {
	if m != nil {
		m.Violations.WithLabelValues(kind).Inc()
	}
}

// LedgerAppended records a successful append.
func (m *Metrics) LedgerAppended() {
	if m != nil {
		m.LedgerAppends.Inc()
	}
}

// LedgerRejected records an event rejected by a gate.
func (m *Metrics) LedgerRejected(kind string) {
	if m != nil {
		m.LedgerRejections.WithLabelValues(kind).Inc()
	}
}

// Registered records a registry registration.
func (m *Metrics) Registered(level string) {
	if m != nil {
		m.Registrations.WithLabelValues(level).Inc()
	}
}

// Verified records an integrity verification outcome.
func (m *Metrics) Verified(outcome string) {
	if m != nil {
		m.Verifications.WithLabelValues(outcome).Inc()
	}
}
