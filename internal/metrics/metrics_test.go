package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.Decision("HIGH", "central-bank")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Decisions.WithLabelValues("HIGH", "central-bank")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Decisions.WithLabelValues("HIGH", "central-bank")))
}

func TestCounters(t *testing.T) {
	m := New()

	m.Violation("no_downgrade")
	m.Violation("no_downgrade")
	m.LedgerAppended()
	m.LedgerRejected("personal_data_detected")
	m.Registered("HIGH")
	m.Verified("tamper_detected")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Violations.WithLabelValues("no_downgrade")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerAppends))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerRejections.WithLabelValues("personal_data_detected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues("tamper_detected")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Decision("LOW", "p")
		m.Violation("k")
		m.LedgerAppended()
		m.LedgerRejected("k")
		m.Registered("LOW")
		m.Verified("valid")
	})
	assert.Nil(t, m.Registry())
}
