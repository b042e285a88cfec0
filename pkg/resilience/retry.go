// SPDX-License-Identifier: Apache-2.0

// Package resilience bounds the gateway's calls to actors: retries with
// backoff, per-attempt timeouts, per-seat circuit breakers and fallbacks.
package resilience

import (
	"context"
	stderrors "errors"
	"math/rand"
	"time"

	"github.com/jllopis/avalon/pkg/errors"
)

// RetryConfig is an exponential backoff policy. It is a value; the With
// methods return modified copies.
type RetryConfig struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts  int
	InitialDelay time.Duration
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay   time.Duration
	Multiplier float64
	// Jitter spreads each wait by ±Jitter of its length.
	Jitter float64

	// IsRecoverable decides whether err is worth another attempt. Nil uses
	// the Recoverable flag of AvalonErrors.
	IsRecoverable func(error) bool
	// OnRetry runs before attempt n (n ≥ 1) with the error that caused it.
	OnRetry func(n int, lastErr error)
}

// DefaultRetryConfig is the policy for automated actors: three attempts
// starting at 100ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
	}
}

func (rc RetryConfig) WithMaxAttempts(n int) RetryConfig {
	rc.MaxAttempts = n
	return rc
}

func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

func (rc RetryConfig) WithOnRetry(fn func(n int, lastErr error)) RetryConfig {
	rc.OnRetry = fn
	return rc
}

// Do calls fn until it succeeds, fails with an unrecoverable error, or
// runs out of attempts. The last error is returned unchanged. Cancellation
// while waiting yields CodeContextLost.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	recoverable := rc.IsRecoverable
	if recoverable == nil {
		recoverable = Recoverable
	}
	attempts := max(rc.MaxAttempts, 1)

	var err error
	for n := 0; n < attempts; n++ {
		if n > 0 {
			if werr := wait(ctx, rc.Backoff(n)); werr != nil {
				return errors.New(errors.CodeContextLost, "canceled between attempts", werr).
					WithContext("attempt", n).
					WithContext("max_attempts", attempts)
			}
			if rc.OnRetry != nil {
				rc.OnRetry(n, err)
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil || !recoverable(err) {
			return err
		}
	}
	return err
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	var out T
	err := rc.Do(ctx, func() error {
		v, err := fn()
		out = v
		return err
	})
	return out, err
}

// Backoff is the wait before attempt n (n ≥ 1).
func (rc RetryConfig) Backoff(n int) time.Duration {
	mult := rc.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(rc.InitialDelay)
	for i := 1; i < n; i++ {
		d *= mult
		if rc.MaxDelay > 0 && d >= float64(rc.MaxDelay) {
			break
		}
	}
	if rc.MaxDelay > 0 {
		d = min(d, float64(rc.MaxDelay))
	}
	if rc.Jitter > 0 {
		d += d * rc.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(max(d, 0))
}

// Recoverable is the default retry predicate. Untyped errors count as
// transient; cancellation never does.
func Recoverable(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}
	var ae *errors.AvalonError
	if stderrors.As(err, &ae) {
		return ae.Recoverable
	}
	return true
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
