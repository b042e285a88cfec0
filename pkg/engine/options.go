// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/avalon/pkg/actor"
	"github.com/jllopis/avalon/pkg/gateway"
	"github.com/jllopis/avalon/pkg/history"
	"github.com/jllopis/avalon/pkg/moderation"
	"github.com/jllopis/avalon/pkg/telemetry"
)

type settings struct {
	matchID       string
	seed          int64
	seeded        bool
	actors        map[string]actor.Actor
	defaultActor  actor.Actor
	gatewayConfig *gateway.Config
	sinks         []history.TimelineSink
	logger        *slog.Logger
	tracer        trace.Tracer
	metrics       *telemetry.MatchMetrics
	events        EventEmitter
	clock         func() time.Time
	moderator     *moderation.Moderator
}

// Option configures a match.
type Option func(*settings)

// WithMatchID sets the match identifier. A UUID is used otherwise.
func WithMatchID(id string) Option {
	return func(s *settings) { s.matchID = id }
}

// WithSeed makes role assignment, the first leader and every fallback
// reproducible.
func WithSeed(seed int64) Option {
	return func(s *settings) {
		s.seed = seed
		s.seeded = true
	}
}

// WithActor drives one seat with a.
func WithActor(seat string, a actor.Actor) Option {
	return func(s *settings) {
		if s.actors == nil {
			s.actors = make(map[string]actor.Actor)
		}
		s.actors[seat] = a
	}
}

// WithActors drives several seats.
func WithActors(actors map[string]actor.Actor) Option {
	return func(s *settings) {
		for seat, a := range actors {
			WithActor(seat, a)(s)
		}
	}
}

// WithDefaultActor drives every seat without its own actor.
func WithDefaultActor(a actor.Actor) Option {
	return func(s *settings) { s.defaultActor = a }
}

// WithGatewayConfig sets retries, timeouts and breakers for actor calls.
func WithGatewayConfig(cfg gateway.Config) Option {
	return func(s *settings) { s.gatewayConfig = &cfg }
}

// WithSinks forwards timeline records to sinks.
func WithSinks(sinks ...history.TimelineSink) Option {
	return func(s *settings) { s.sinks = append(s.sinks, sinks...) }
}

// WithLogger sets the match logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithTracer sets the tracer for match, round, proposal and decision spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// WithMetrics records match and decision counters.
func WithMetrics(m *telemetry.MatchMetrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithEvents sets the observer for match events.
func WithEvents(e EventEmitter) Option {
	return func(s *settings) { s.events = e }
}

// WithClock overrides timestamps in the recorded timeline.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.clock = now }
}

// WithModerator screens discussion comments before they are recorded.
func WithModerator(m *moderation.Moderator) Option {
	return func(s *settings) { s.moderator = m }
}
