// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
)

// FallbackStrategy produces a value when the primary operation fails.
type FallbackStrategy[T any] interface {
	Execute(ctx context.Context, primaryErr error) (T, error)
}

// FallbackFunc wraps a function as a FallbackStrategy.
type FallbackFunc[T any] func(ctx context.Context, primaryErr error) (T, error)

// Execute implements FallbackStrategy.
func (f FallbackFunc[T]) Execute(ctx context.Context, err error) (T, error) {
	return f(ctx, err)
}

// StaticFallback returns a static value on failure.
type StaticFallback[T any] struct {
	Value T
}

// Execute implements FallbackStrategy.
func (s StaticFallback[T]) Execute(_ context.Context, _ error) (T, error) {
	return s.Value, nil
}

// WithFallback executes fn, and on error, uses the fallback strategy.
// The primary error is passed to the fallback so it can be logged or counted.
func WithFallback[T any](ctx context.Context, fn func() (T, error), fallback FallbackStrategy[T]) (T, error) {
	value, err := fn()
	if err == nil {
		return value, nil
	}
	return fallback.Execute(ctx, err)
}
