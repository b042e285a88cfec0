// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jllopis/avalon/pkg/errors"
)

// CircuitBreakerState is the position of a breaker.
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig configures a breaker. Zero fields take defaults:
// five failures to open, one success to close, 30s cool-down.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	// Timeout is the cool-down before an open breaker lets a probe through.
	Timeout time.Duration
	Name    string
}

// CircuitBreaker guards one seat. While open, decisions for that seat go
// straight to the fallback instead of paying for retries.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitBreakerState
	streak   int // consecutive failures when closed, successes when half-open
	openedAt time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "circuit_breaker"
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed, now: time.Now}
}

// Call runs fn unless the breaker is open, in which case it fails with
// CodeCircuitOpen. A lost context is passed through without counting.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if cb.State() == StateOpen {
		return errors.New(errors.CodeCircuitOpen, "circuit breaker open", nil).
			WithContext("breaker", cb.cfg.Name)
	}

	err := fn()
	if err != nil && errors.IsCode(err, errors.CodeContextLost) {
		return err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failure()
	} else {
		cb.success()
	}
	return err
}

func (cb *CircuitBreaker) failure() {
	if cb.state == StateHalfOpen {
		cb.trip()
		return
	}
	cb.streak++
	if cb.streak >= cb.cfg.FailureThreshold {
		cb.trip()
	}
}

func (cb *CircuitBreaker) success() {
	switch cb.state {
	case StateHalfOpen:
		cb.streak++
		if cb.streak >= cb.cfg.SuccessThreshold {
			cb.moveTo(StateClosed)
		}
	case StateClosed:
		cb.streak = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.moveTo(StateOpen)
	cb.openedAt = cb.now()
}

func (cb *CircuitBreaker) moveTo(s CircuitBreakerState) {
	cb.state = s
	cb.streak = 0
}

// State reports the current state, promoting an open breaker to half-open
// once its cool-down has passed.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) > cb.cfg.Timeout {
		cb.moveTo(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.moveTo(StateClosed)
	cb.mu.Unlock()
}
