package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected because the
// breaker has tripped.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the observable circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker fails fast against an unreachable embedding or LLM
// backend. After maxFailures consecutive errors the breaker opens and
// rejects calls until resetTimeout has passed, after which a single
// probe call decides whether to close again.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.RWMutex
	open     bool
	failures int
	openedAt time.Time
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets how many consecutive failures trip the breaker.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.maxFailures = n }
}

// WithResetTimeout sets how long the breaker stays open before probing.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// NewCircuitBreaker creates a closed breaker. Defaults trip after 5
// failures and probe again after 30 seconds.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State reports the current state, accounting for reset timeout expiry.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() State {
	if !cb.open {
		return StateClosed
	}
	if time.Since(cb.openedAt) > cb.resetTimeout {
		return StateHalfOpen
	}
	return StateOpen
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Allow reports whether a call would currently go through.
func (cb *CircuitBreaker) Allow() bool {
	return cb.State() != StateOpen
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.open = false
}

// RecordFailure counts a failure and trips the breaker at the
// threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.openedAt = time.Now()
	if cb.failures >= cb.maxFailures {
		cb.open = true
	}
}

// Execute runs fn through the breaker, returning ErrCircuitOpen when
// the breaker rejects the call.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := ExecuteWithResult(cb,
		func() (struct{}, error) { return struct{}{}, fn() },
		func() (struct{}, error) { return struct{}{}, ErrCircuitOpen })
	return err
}

// ExecuteWithResult runs fn through the breaker. When the breaker is
// open, fallback is called instead so callers can degrade rather than
// fail outright. A half-open breaker lets fn through as a probe.
func ExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error), fallback func() (T, error)) (T, error) {
	switch cb.State() {
	case StateOpen:
		return fallback()

	case StateHalfOpen:
		result, err := fn()
		if err != nil {
			cb.mu.Lock()
			cb.open = true
			cb.openedAt = time.Now()
			cb.mu.Unlock()
			return fallback()
		}
		cb.RecordSuccess()
		return result, nil

	default:
		result, err := fn()
		if err != nil {
			cb.RecordFailure()
			return result, err
		}
		cb.RecordSuccess()
		return result, nil
	}
}
