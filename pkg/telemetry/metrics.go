// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	stderrors "errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/avalon/pkg/errors"
)

// MatchMetrics counts decisions, fallbacks, retries and match outcomes.
// A nil *MatchMetrics is valid and records nothing.
type MatchMetrics struct {
	decisions    metric.Int64Counter
	fallbacks    metric.Int64Counter
	retries      metric.Int64Counter
	completed    metric.Int64Counter
	errorCounter metric.Int64Counter

	// breakerState tracks circuit breaker state per seat (0=open, 1=half-open, 2=closed)
	breakerState metric.Int64Gauge
}

// NewMatchMetrics registers the instruments on the global meter provider.
func NewMatchMetrics() (*MatchMetrics, error) {
	return NewMatchMetricsWithMeter(otel.Meter("avalon/engine"))
}

// NewMatchMetricsWithMeter registers the instruments on meter.
func NewMatchMetricsWithMeter(meter metric.Meter) (*MatchMetrics, error) {
	decisions, err := meter.Int64Counter(
		"avalon.decisions.total",
		metric.WithDescription("Decisions requested by kind and actor type"),
	)
	if err != nil {
		return nil, err
	}

	fallbacks, err := meter.Int64Counter(
		"avalon.decisions.fallback",
		metric.WithDescription("Decisions resolved by the random fallback"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter(
		"avalon.actor.retries",
		metric.WithDescription("Actor retries by decision kind"),
	)
	if err != nil {
		return nil, err
	}

	completed, err := meter.Int64Counter(
		"avalon.matches.completed",
		metric.WithDescription("Completed matches by winning faction"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"avalon.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	breakerState, err := meter.Int64Gauge(
		"avalon.circuitbreaker.state",
		metric.WithDescription("Actor circuit breaker state per seat (0=open, 1=half-open, 2=closed)"),
	)
	if err != nil {
		return nil, err
	}

	return &MatchMetrics{
		decisions:    decisions,
		fallbacks:    fallbacks,
		retries:      retries,
		completed:    completed,
		errorCounter: errorCounter,
		breakerState: breakerState,
	}, nil
}

// RecordDecision counts one resolved decision.
func (m *MatchMetrics) RecordDecision(ctx context.Context, kind, actorType string, fallback bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrDecisionKind, kind),
		attribute.String(AttrActorType, actorType),
	)
	m.decisions.Add(ctx, 1, attrs)
	if fallback {
		m.fallbacks.Add(ctx, 1, attrs)
	}
}

// RecordRetry counts one actor retry.
func (m *MatchMetrics) RecordRetry(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrDecisionKind, kind)))
}

// RecordMatch counts a finished match.
func (m *MatchMetrics) RecordMatch(ctx context.Context, winner string, assassination bool) {
	if m == nil {
		return
	}
	m.completed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrMatchWinner, winner),
		attribute.Bool("avalon.match.assassination", assassination),
	))
}

// RecordError increments the error counter for err's code and component.
func (m *MatchMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}

	code, recoverable := "UNKNOWN", "unknown"
	var ae *errors.AvalonError
	if stderrors.As(err, &ae) {
		code = string(ae.Code)
		recoverable = ae.RecoverableString()
	}
	m.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", code),
			attribute.String("component", component),
			attribute.String("recoverable", recoverable),
		),
	)
}

// RecordCircuitBreakerState records a seat breaker state (0=open, 1=half-open, 2=closed).
func (m *MatchMetrics) RecordCircuitBreakerState(ctx context.Context, seat string, state int64) {
	if m == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(attribute.String(AttrSeat, seat)))
}
