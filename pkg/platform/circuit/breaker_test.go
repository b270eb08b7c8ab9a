package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// step is one recorded call outcome and what the breaker should report.
type step struct {
	fail     bool
	wantOpen bool
	// wantChange is "opened", "closed" or "".
	wantChange string
}

func TestBreakerSequences(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		steps []step
	}{
		{
			name: "opens on the threshold failure",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{fail: true},
				{fail: true},
				{fail: true, wantOpen: true, wantChange: "opened"},
				{fail: true, wantOpen: true},
			},
		},
		{
			name: "success clears the failure streak",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{fail: true},
				{fail: true},
				{},
				{fail: true},
				{fail: true},
				{fail: true, wantOpen: true, wantChange: "opened"},
			},
		},
		{
			name: "closes after the success threshold",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{fail: true, wantOpen: true, wantChange: "opened"},
				{wantOpen: true},
				{wantChange: "closed"},
			},
		},
		{
			name: "failed probe restarts the success streak",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(3)},
			steps: []step{
				{fail: true, wantOpen: true, wantChange: "opened"},
				{wantOpen: true},
				{wantOpen: true},
				{fail: true, wantOpen: true},
				{wantOpen: true},
				{wantOpen: true},
				{wantChange: "closed"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("escrow", tt.opts...)
			for i, st := range tt.steps {
				var change StateChange
				if st.fail {
					useFallback, c := b.RecordFailure()
					assert.Equal(t, st.wantOpen, useFallback, "step %d fallback", i)
					change = c
				} else {
					usePrimary, c := b.RecordSuccess()
					assert.Equal(t, !st.wantOpen, usePrimary, "step %d primary", i)
					change = c
				}
				assert.Equal(t, st.wantChange == "opened", change.Opened, "step %d opened", i)
				assert.Equal(t, st.wantChange == "closed", change.Closed, "step %d closed", i)
				require.Equal(t, st.wantOpen, b.IsOpen(), "step %d state", i)
			}
		})
	}
}

func TestBreakerCooldownGatesProbes(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := New("identity",
		WithFailureThreshold(1),
		WithCooldown(10*time.Second),
		WithClock(func() time.Time { return now }),
	)
	assert.Equal(t, "identity", b.Name())
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(10 * time.Second)
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.False(t, b.Allow(), "a failed probe restarts the cooldown")
	assert.Equal(t, "open", b.State().String())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}
