package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker(timeout time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          timeout,
	})
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := testBreaker(time.Hour)

	for range 2 {
		cb.Failure()
		assert.NoError(t, cb.Allow())
	}
	cb.Failure()

	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := testBreaker(time.Hour)

	cb.Failure()
	cb.Failure()
	cb.Success()
	cb.Failure()
	cb.Failure()

	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := testBreaker(10 * time.Millisecond)

	for range 3 {
		cb.Failure()
	}
	require.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	time.Sleep(20 * time.Millisecond)

	assert.NoError(t, cb.Allow(), "cool-down elapsed, probe allowed")
	assert.Equal(t, CircuitHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenClosesAfterSuccesses(t *testing.T) {
	cb := testBreaker(10 * time.Millisecond)
	for range 3 {
		cb.Failure()
	}
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())

	cb.Success()
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.Success()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	cb := testBreaker(10 * time.Millisecond)
	for range 3 {
		cb.Failure()
	}
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())

	cb.Failure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
}
