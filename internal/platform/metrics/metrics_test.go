package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveReadiness(t *testing.T) {
	m := New("test")

	m.ObserveReadiness("redis", true)
	m.ObserveReadiness("redis", false)
	m.ObserveReadiness("redis", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadyChecks.WithLabelValues("redis", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReadyChecks.WithLabelValues("redis", "failed")))

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "rentguard_build_info")
	assert.Contains(t, names, "go_goroutines")
}

func TestObserveReadinessNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.ObserveReadiness("store", true) })
}
