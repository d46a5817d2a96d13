package sidecar

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBreaker(t *testing.T, maxProbes int) (*CircuitBreaker, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Enabled:             true,
		FailureThreshold:    1,
		RecoveryTimeout:     time.Second,
		HalfOpenMaxRequests: maxProbes,
	}, mock)

	require.True(t, cb.Allow())
	cb.RecordFailure()
	require.True(t, cb.IsOpen())
	assert.False(t, cb.Allow())
	return cb, mock
}

func TestCircuitBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	cb, mock := openBreaker(t, 1)
	mock.Add(time.Second)

	assert.True(t, cb.Allow())
	// no result yet for the first probe
	assert.False(t, cb.Allow())
	assert.False(t, cb.Allow())

	cb.RecordSuccess()
	assert.False(t, cb.IsOpen())
	assert.True(t, cb.Allow())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenMultipleProbes(t *testing.T) {
	cb, mock := openBreaker(t, 2)
	mock.Add(time.Second)

	assert.True(t, cb.Allow())
	assert.True(t, cb.Allow())
	assert.False(t, cb.Allow())

	cb.RecordSuccess()
	assert.False(t, cb.Allow())
	cb.RecordSuccess()
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, mock := openBreaker(t, 1)
	mock.Add(time.Second)

	require.True(t, cb.Allow())
	cb.RecordFailure()
	assert.True(t, cb.IsOpen())
	assert.False(t, cb.Allow())

	mock.Add(time.Second)
	assert.True(t, cb.Allow())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_Disabled(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1}, clock.NewMock())
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.True(t, cb.Allow())
	assert.False(t, cb.IsOpen())
}
