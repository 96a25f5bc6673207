package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{ConsecutiveThreshold: 3, Cooldown: time.Minute})

	require.NoError(t, cb.Allow())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.Equal(t, CircuitClosed, cb.State())

	// Third consecutive failure opens the circuit.
	assert.True(t, cb.RecordFailure())
	assert.Equal(t, CircuitOpen, cb.State())
	assert.True(t, errors.Is(cb.Allow(), ErrCircuitOpen))
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{ConsecutiveThreshold: 2, Cooldown: time.Minute})

	cb.RecordFailure()
	cb.RecordSuccess()
	// The count is consecutive, not cumulative.
	assert.False(t, cb.RecordFailure())
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{ConsecutiveThreshold: 1, Cooldown: 30 * time.Second})
	cb.now = func() time.Time { return now }

	require.True(t, cb.RecordFailure())
	require.Error(t, cb.Allow())

	// Cooldown not yet elapsed.
	now = now.Add(29 * time.Second)
	require.Error(t, cb.Allow())

	// Cooldown elapsed: one probe is admitted.
	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// Probe success closes the circuit.
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{ConsecutiveThreshold: 1, Cooldown: time.Second})
	cb.now = func() time.Time { return now }

	require.True(t, cb.RecordFailure())
	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Allow())

	// Probe failure re-opens immediately and restarts the cooldown.
	assert.True(t, cb.RecordFailure())
	assert.Equal(t, CircuitOpen, cb.State())
	require.Error(t, cb.Allow())
}

func TestBreakerRegistry(t *testing.T) {
	reg := NewBreakerRegistry(
		CircuitBreakerConfig{ConsecutiveThreshold: 5, Cooldown: time.Minute},
		map[string]CircuitBreakerConfig{
			"screener": {ConsecutiveThreshold: 1, Cooldown: time.Minute},
		},
	)

	assert.Equal(t, CircuitClosed, reg.State("screener"))

	// Per-name config applies.
	cb := reg.Get("screener")
	assert.True(t, cb.RecordFailure())
	assert.Equal(t, CircuitOpen, reg.State("screener"))

	// Same name returns the same breaker.
	assert.Same(t, cb, reg.Get("screener"))

	// Unknown names fall back to the default config.
	other := reg.Get("writer")
	assert.False(t, other.RecordFailure())
}
