// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway turns free-text actor answers into legal game decisions.
// Every call resolves: actor failures are retried, then replaced by a random
// legal decision drawn from the match RNG. Only cancellation of the caller's
// context is returned as an error.
package gateway

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/avalon/pkg/actor"
	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/game"
	"github.com/jllopis/avalon/pkg/history"
	"github.com/jllopis/avalon/pkg/moderation"
	"github.com/jllopis/avalon/pkg/resilience"
	"github.com/jllopis/avalon/pkg/telemetry"
)

// DiscussSentences is the longest comment kept, in sentences.
const DiscussSentences = 2

// Config controls retries, timeouts and circuit breaking per actor.
type Config struct {
	Retry resilience.RetryConfig
	// Timeout bounds each attempt of an automated actor.
	Timeout time.Duration
	// InteractiveTimeout bounds each attempt of an interactive actor.
	// Zero waits forever.
	InteractiveTimeout time.Duration
	// Breaker applies to automated actors only.
	Breaker        resilience.CircuitBreakerConfig
	DisableBreaker bool
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Retry:   resilience.DefaultRetryConfig(),
		Timeout: 2 * time.Minute,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			SuccessThreshold: 1,
			Timeout:          time.Minute,
		},
	}
}

// Gateway resolves decisions for the seats of one match. It is not safe for
// concurrent use; a match asks for one decision at a time.
type Gateway struct {
	matchID  string
	seats    []game.Seat
	names    []string
	actors   map[string]actor.Actor
	infos    map[string]actor.Info
	breakers map[string]*resilience.CircuitBreaker
	rng      *rand.Rand
	cfg      Config

	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *telemetry.MatchMetrics
	moderator *moderation.Moderator
	newID     func() string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithConfig replaces the default retry, timeout and breaker settings.
func WithConfig(cfg Config) Option {
	return func(g *Gateway) { g.cfg = cfg }
}

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithTracer sets the tracer for decision spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithMetrics records decision counters.
func WithMetrics(m *telemetry.MatchMetrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithModerator screens comments before they become public. A blocked
// comment is treated as malformed and replaced by a canned one.
func WithModerator(m *moderation.Moderator) Option {
	return func(g *Gateway) { g.moderator = m }
}

// WithMatchID stamps requests with the match identifier.
func WithMatchID(id string) Option {
	return func(g *Gateway) { g.matchID = id }
}

// WithRequestIDs overrides request ID generation.
func WithRequestIDs(fn func() string) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.newID = fn
		}
	}
}

// New creates a gateway. Every seat needs an actor.
func New(seats []game.Seat, actors map[string]actor.Actor, rng *rand.Rand, opts ...Option) (*Gateway, error) {
	if rng == nil {
		return nil, errors.Newf(errors.CodeConfiguration, "gateway needs a random source")
	}
	g := &Gateway{
		seats:    seats,
		names:    game.Names(seats),
		actors:   make(map[string]actor.Actor, len(seats)),
		infos:    make(map[string]actor.Info, len(seats)),
		breakers: make(map[string]*resilience.CircuitBreaker),
		rng:      rng,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("avalon/gateway"),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, s := range seats {
		a, ok := actors[s.Name]
		if !ok || a == nil {
			return nil, errors.Newf(errors.CodeConfiguration, "no actor for seat %q", s.Name)
		}
		info := actor.InfoOf(a)
		g.actors[s.Name] = a
		g.infos[s.Name] = info
		if !info.Interactive && !g.cfg.DisableBreaker {
			bc := g.cfg.Breaker
			bc.Name = "seat-" + s.Name
			g.breakers[s.Name] = resilience.NewCircuitBreaker(bc)
		}
	}
	return g, nil
}

// Info returns the actor description of a seat.
func (g *Gateway) Info(seat string) actor.Info { return g.infos[seat] }

// Propose asks the leader for a team of c.TeamSize seats.
func (g *Gateway) Propose(ctx context.Context, leader string, public history.PublicMemory, c actor.Context) ([]string, error) {
	c.Options = g.names
	req := g.request(actor.KindPropose, leader, public, c)
	return resolve(ctx, g, req,
		func(raw string) ([]string, bool) { return ExtractTeam(raw, g.names, c.TeamSize) },
		func() []string { return g.sample(c.TeamSize) })
}

// Finalize asks the leader to keep or replace c.Team. Anything but a team of
// the right size keeps the initial team.
func (g *Gateway) Finalize(ctx context.Context, leader string, public history.PublicMemory, c actor.Context) ([]string, error) {
	initial := append([]string(nil), c.Team...)
	c.Options = g.names
	req := g.request(actor.KindFinalize, leader, public, c)
	return resolve(ctx, g, req,
		func(raw string) ([]string, bool) { return ExtractTeam(raw, g.names, c.TeamSize) },
		func() []string { return initial })
}

var cannedComments = []string{
	"I have nothing to add on this team.",
	"No strong opinion on this one yet.",
	"I will wait to see how the vote goes.",
	"This team seems reasonable to me for now.",
}

// Discuss asks a seat for a comment of at most two sentences.
func (g *Gateway) Discuss(ctx context.Context, seat string, public history.PublicMemory, c actor.Context) (string, error) {
	c.Options = nil
	req := g.request(actor.KindDiscuss, seat, public, c)
	return resolve(ctx, g, req,
		func(raw string) (string, bool) {
			review := g.moderator.Review(ctx, raw)
			if review.Blocked() {
				g.logger.WarnContext(ctx, "comment blocked",
					"seat", seat, "rule", review.Verdict.Rule, "matches", review.Verdict.Matches)
				return "", false
			}
			text := TruncateSentences(review.Text, DiscussSentences)
			return text, text != ""
		},
		func() string { return cannedComments[g.rng.Intn(len(cannedComments))] })
}

// Vote asks a seat to approve or reject c.Team.
func (g *Gateway) Vote(ctx context.Context, seat string, public history.PublicMemory, c actor.Context) (bool, error) {
	c.Options = []string{actor.Approve, actor.Reject}
	req := g.request(actor.KindVote, seat, public, c)
	return resolve(ctx, g, req,
		func(raw string) (bool, bool) {
			choice, ok := ExtractChoice(raw, c.Options)
			return choice == actor.Approve, ok
		},
		func() bool { return g.rng.Intn(2) == 0 })
}

// MissionAction asks a team member to play success or fail. Good seats
// always succeed whatever they answer.
func (g *Gateway) MissionAction(ctx context.Context, seat string, public history.PublicMemory, c actor.Context) (bool, error) {
	s, _ := game.SeatByName(g.seats, seat)
	c.Options = []string{actor.Success, actor.Fail}
	req := g.request(actor.KindMissionAction, seat, public, c)
	ok, err := resolve(ctx, g, req,
		func(raw string) (bool, bool) {
			choice, found := ExtractChoice(raw, c.Options)
			return choice == actor.Success, found
		},
		func() bool {
			if !s.IsEvil() {
				return true
			}
			return g.rng.Intn(2) == 0
		})
	if err != nil {
		return false, err
	}
	if !ok && !s.IsEvil() {
		g.logger.DebugContext(ctx, "good seat played fail, counted as success", "seat", seat)
		return true, nil
	}
	return ok, nil
}

// Assassinate asks the assassin to name one Good seat.
func (g *Gateway) Assassinate(ctx context.Context, assassin string, public history.PublicMemory, c actor.Context) (string, error) {
	good := game.Names(game.SeatsOf(g.seats, game.Good))
	c.Options = good
	req := g.request(actor.KindAssassinate, assassin, public, c)
	return resolve(ctx, g, req,
		func(raw string) (string, bool) { return ExtractChoice(raw, good) },
		func() string { return good[g.rng.Intn(len(good))] })
}

func (g *Gateway) request(kind actor.Kind, seat string, public history.PublicMemory, c actor.Context) actor.Request {
	s, _ := game.SeatByName(g.seats, seat)
	if len(c.Players) == 0 {
		c.Players = g.names
	}
	return actor.Request{
		ID:        g.newID(),
		MatchID:   g.matchID,
		Kind:      kind,
		Seat:      seat,
		Knowledge: game.Visibility(s, g.seats),
		Public:    public,
		Context:   c,
	}
}

// sample draws size seats uniformly and returns them in seat order.
func (g *Gateway) sample(size int) []string {
	idx := g.rng.Perm(len(g.names))[:size]
	chosen := make([]bool, len(g.names))
	for _, i := range idx {
		chosen[i] = true
	}
	team := make([]string, 0, size)
	for i, n := range g.names {
		if chosen[i] {
			team = append(team, n)
		}
	}
	return team
}

// ask calls the seat's actor with retries, per-attempt timeout and breaker.
func (g *Gateway) ask(ctx context.Context, req actor.Request) (string, int, error) {
	a := g.actors[req.Seat]
	info := g.infos[req.Seat]

	timeout := g.cfg.Timeout
	if info.Interactive {
		timeout = g.cfg.InteractiveTimeout
	}

	attempts := 0
	attempt := func() (string, error) {
		attempts++
		return resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: timeout},
			func(ctx context.Context) (string, error) {
				raw, err := a.Submit(ctx, req)
				if err != nil {
					return "", err
				}
				if strings.TrimSpace(raw) == "" {
					return "", errors.New(errors.CodeActorEmptyResponse, "actor returned no text", nil)
				}
				return raw, nil
			})
	}

	retry := g.cfg.Retry.WithOnRetry(func(int, error) {
		g.metrics.RecordRetry(ctx, string(req.Kind))
	})

	breaker, ok := g.breakers[req.Seat]
	if !ok {
		raw, err := resilience.DoWithResult(ctx, retry, attempt)
		return raw, attempts, err
	}

	var raw string
	err := breaker.Call(ctx, func() error {
		var err error
		raw, err = resilience.DoWithResult(ctx, retry, attempt)
		return err
	})
	g.metrics.RecordCircuitBreakerState(ctx, req.Seat, breakerGauge(breaker.State()))
	return raw, attempts, err
}

// resolve asks for a decision and parses it, falling back to a random legal
// value on any failure except cancellation.
func resolve[T any](ctx context.Context, g *Gateway, req actor.Request, parse func(string) (T, bool), fallback func() T) (T, error) {
	info := g.infos[req.Seat]
	ctx, span := g.tracer.Start(ctx, "avalon.decision",
		trace.WithAttributes(telemetry.DecisionAttributes(req.Seat, string(req.Kind), info.Type)...))
	defer span.End()

	attempts := 0
	fellBack := false
	reason := ""

	value, err := resilience.WithFallback(ctx,
		func() (T, error) {
			var zero T
			raw, n, err := g.ask(ctx, req)
			attempts = n
			if err != nil {
				return zero, err
			}
			v, ok := parse(raw)
			if !ok {
				return zero, errors.New(errors.CodeMalformedDecision, "no legal decision in response", nil).
					WithContext("response", clip(raw, 120))
			}
			return v, nil
		},
		resilience.FallbackFunc[T](func(ctx context.Context, primary error) (T, error) {
			var zero T
			if ctx.Err() != nil {
				return zero, errors.New(errors.CodeContextLost, "decision canceled", ctx.Err()).
					WithContext("seat", req.Seat).
					WithContext("kind", string(req.Kind))
			}
			fellBack = true
			reason = primary.Error()
			g.metrics.RecordError(ctx, primary, "gateway")
			g.logger.WarnContext(ctx, "actor decision replaced by fallback",
				"seat", req.Seat,
				"kind", string(req.Kind),
				"reason", reason,
				"attempts", attempts,
			)
			return fallback(), nil
		}))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return value, err
	}
	span.SetAttributes(telemetry.DecisionOutcomeAttributes(attempts, fellBack, reason)...)
	g.metrics.RecordDecision(ctx, string(req.Kind), info.Type, fellBack)
	return value, nil
}

func breakerGauge(s resilience.CircuitBreakerState) int64 {
	switch s {
	case resilience.StateOpen:
		return 0
	case resilience.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
