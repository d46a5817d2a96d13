package sidecar

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrCircuitOpen is returned without contacting the sidecar while the breaker is open
var ErrCircuitOpen = errors.New("sidecar circuit breaker is open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled             bool
	FailureThreshold    int
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int
}

// CircuitBreaker fails batches fast after consecutive transport failures.
// It never retries; a rejected batch fails like any other transport error.
type CircuitBreaker struct {
	cfg             CircuitBreakerConfig
	clock           clock.Clock
	state           breakerState
	failures        int
	halfOpenSuccess int
	halfOpenProbes  int // admitted in half-open, success or not
	lastFailureAt   time.Time
	mu              sync.Mutex
}

// NewCircuitBreaker creates a new CircuitBreaker
func NewCircuitBreaker(cfg CircuitBreakerConfig, clk clock.Clock) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	return &CircuitBreaker{
		cfg:   cfg,
		clock: clk,
		state: breakerClosed,
	}
}

// Allow returns true if a batch may be sent
func (cb *CircuitBreaker) Allow() bool {
	if !cb.cfg.Enabled {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerHalfOpen:
		if cb.halfOpenProbes >= cb.cfg.HalfOpenMaxRequests {
			return false
		}
		cb.halfOpenProbes++
		return true
	case breakerOpen:
		if cb.clock.Since(cb.lastFailureAt) >= cb.cfg.RecoveryTimeout {
			cb.state = breakerHalfOpen
			cb.halfOpenSuccess = 0
			cb.halfOpenProbes = 1
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess records a batch that got a well-formed response
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.cfg.Enabled {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerHalfOpen:
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.cfg.HalfOpenMaxRequests {
			cb.state = breakerClosed
			cb.failures = 0
			cb.halfOpenProbes = 0
		}
	case breakerClosed:
		cb.failures = 0
	}
}

// RecordFailure records a transport-level failure
func (cb *CircuitBreaker) RecordFailure() {
	if !cb.cfg.Enabled {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureAt = cb.clock.Now()

	switch cb.state {
	case breakerClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.state = breakerOpen
		}
	case breakerHalfOpen:
		cb.state = breakerOpen
		cb.halfOpenSuccess = 0
		cb.halfOpenProbes = 0
	}
}

// IsOpen reports whether batches are currently being rejected
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == breakerOpen
}
