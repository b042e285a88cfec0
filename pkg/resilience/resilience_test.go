// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	aerrors "github.com/jllopis/avalon/pkg/errors"
)

func fastRetry() RetryConfig {
	return DefaultRetryConfig().WithInitialDelay(time.Millisecond).WithMaxDelay(2 * time.Millisecond)
}

func TestRetrySuccess(t *testing.T) {
	attempts := 0
	err := fastRetry().Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	retries := 0
	config := fastRetry().WithMaxAttempts(2).WithOnRetry(func(int, error) { retries++ })
	err := config.Do(context.Background(), func() error {
		attempts++
		return errors.New("always fails")
	})

	if err == nil {
		t.Errorf("expected error after max attempts")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if retries != 1 {
		t.Errorf("expected OnRetry once, got %d", retries)
	}
}

func TestRetryNonRecoverable(t *testing.T) {
	attempts := 0
	err := fastRetry().Do(context.Background(), func() error {
		attempts++
		return aerrors.New(aerrors.CodeCircuitOpen, "open", nil)
	})

	if !aerrors.IsCode(err, aerrors.CodeCircuitOpen) {
		t.Errorf("expected circuit open error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryRecoverableActorError(t *testing.T) {
	attempts := 0
	err := fastRetry().Do(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return aerrors.New(aerrors.CodeActorEmptyResponse, "empty", nil)
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected retry to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := DefaultRetryConfig().WithInitialDelay(200 * time.Millisecond).WithMaxAttempts(5)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := config.Do(ctx, func() error {
		attempts++
		return errors.New("transient error")
	})

	if !aerrors.IsCode(err, aerrors.CodeContextLost) {
		t.Errorf("expected context lost error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), fastRetry(), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("transient")
		}
		return "APPROVE", nil
	})

	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
	if result != "APPROVE" {
		t.Errorf("expected 'APPROVE', got %v", result)
	}
}

func TestWithTimeoutExceeded(t *testing.T) {
	_, err := WithTimeoutResult(context.Background(), TimeoutConfig{Duration: 10 * time.Millisecond},
		func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
	if !aerrors.IsCode(err, aerrors.CodeActorTimeout) {
		t.Fatalf("expected actor timeout, got %v", err)
	}
}

func TestWithTimeoutParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, TimeoutConfig{Duration: time.Second}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !aerrors.IsCode(err, aerrors.CodeContextLost) {
		t.Fatalf("expected context lost, got %v", err)
	}
}

func TestWithTimeoutDisabled(t *testing.T) {
	got, err := WithTimeoutResult(context.Background(), TimeoutConfig{}, func(context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Fatalf("expected passthrough, got %d, %v", got, err)
	}
}

func TestWithFallback(t *testing.T) {
	var seen error
	got, err := WithFallback(context.Background(),
		func() (bool, error) { return false, errors.New("no answer") },
		FallbackFunc[bool](func(_ context.Context, primary error) (bool, error) {
			seen = primary
			return true, nil
		}))
	if err != nil || !got {
		t.Fatalf("expected fallback value, got %v, %v", got, err)
	}
	if seen == nil {
		t.Fatalf("expected primary error to reach the fallback")
	}

	v, _ := WithFallback(context.Background(), func() (string, error) { return "", errors.New("x") }, StaticFallback[string]{Value: "REJECT"})
	if v != "REJECT" {
		t.Fatalf("expected static fallback, got %q", v)
	}
}

func TestCircuitBreakerOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, Name: "seat-Alice"})

	for i := 0; i < 2; i++ {
		_ = cb.Call(context.Background(), func() error { return errors.New("failure") })
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected state Open after 2 failures")
	}

	err := cb.Call(context.Background(), func() error {
		t.Fatalf("should not execute in open state")
		return nil
	})
	if !aerrors.IsCode(err, aerrors.CodeCircuitOpen) {
		t.Errorf("expected circuit open error, got %v", err)
	}
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
	})
	now := time.Now()
	cb.now = func() time.Time { return now }

	_ = cb.Call(context.Background(), func() error { return errors.New("fail") })
	if cb.State() != StateOpen {
		t.Fatalf("expected circuit to be open")
	}

	now = now.Add(2 * time.Minute)
	_ = cb.Call(context.Background(), func() error { return nil })
	if cb.State() != StateHalfOpen {
		t.Errorf("expected state HalfOpen after timeout")
	}

	_ = cb.Call(context.Background(), func() error { return nil })
	if cb.State() != StateClosed {
		t.Errorf("expected state Closed after successes in half-open")
	}
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	_ = cb.Call(context.Background(), func() error {
		return aerrors.New(aerrors.CodeContextLost, "canceled", context.Canceled)
	})
	if cb.State() != StateClosed {
		t.Errorf("cancellation must not count as an actor failure")
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	_ = cb.Call(context.Background(), func() error { return errors.New("fail") })
	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("expected state Closed after reset")
	}
}

func TestBackoff(t *testing.T) {
	rc := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 3}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 300 * time.Millisecond},
		{3, 900 * time.Millisecond},
		{4, time.Second},
		{40, time.Second},
	}
	for _, tt := range tests {
		if got := rc.Backoff(tt.n); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}

	rc.Jitter = 0.5
	for i := 0; i < 20; i++ {
		if got := rc.Backoff(1); got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("jittered backoff out of range: %v", got)
		}
	}
}

func TestRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), true},
		{"canceled", context.Canceled, false},
		{"timeout", aerrors.New(aerrors.CodeActorTimeout, "slow", nil), true},
		{"circuit open", aerrors.New(aerrors.CodeCircuitOpen, "open", nil), false},
	}
	for _, tt := range tests {
		if got := Recoverable(tt.err); got != tt.want {
			t.Errorf("%s: Recoverable = %v, want %v", tt.name, got, tt.want)
		}
	}
}
