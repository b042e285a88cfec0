// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine runs a six-seat Avalon match: role assignment, the
// proposal, discussion, vote and mission cycle of each round, and the final
// assassination. A match is driven strictly sequentially; independent
// matches share nothing and may run concurrently.
package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/avalon/pkg/actor"
	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/game"
	"github.com/jllopis/avalon/pkg/gateway"
	"github.com/jllopis/avalon/pkg/history"
	"github.com/jllopis/avalon/pkg/telemetry"
)

// Match is the handle of one match.
type Match struct {
	id      string
	seed    int64
	seats   []game.Seat
	names   []string
	actors  map[string]actor.Actor
	gw      *gateway.Gateway
	store   *history.Store
	tally   game.Tally
	leader  int
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.MatchMetrics
	events  EventEmitter

	mu      sync.Mutex
	phase   Phase
	round   int
	started bool
}

// Start assigns roles to the named seats and prepares a match. Nothing is
// asked of any actor until Run.
func Start(names []string, opts ...Option) (*Match, error) {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if !s.seeded {
		s.seed = time.Now().UnixNano()
	}
	if s.matchID == "" {
		s.matchID = uuid.NewString()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("avalon/engine")
	}
	if s.events == nil {
		s.events = NoopEventEmitter{}
	}

	rng := rand.New(rand.NewSource(s.seed))
	seats, err := game.AssignRoles(names, rng)
	if err != nil {
		return nil, err
	}
	if err := game.ValidateRoles(seats); err != nil {
		return nil, err
	}

	actors := make(map[string]actor.Actor, len(seats))
	for _, seat := range seats {
		a, ok := s.actors[seat.Name]
		if !ok {
			a = s.defaultActor
		}
		if a == nil {
			return nil, errors.Newf(errors.CodeConfiguration, "no actor for seat %q", seat.Name)
		}
		actors[seat.Name] = a
	}
	for name := range s.actors {
		if _, ok := game.SeatByName(seats, name); !ok {
			return nil, errors.Newf(errors.CodeConfiguration, "actor given for unknown seat %q", name)
		}
	}

	logger := s.logger.With("match_id", s.matchID)
	gwOpts := []gateway.Option{
		gateway.WithMatchID(s.matchID),
		gateway.WithLogger(logger),
		gateway.WithTracer(s.tracer),
		gateway.WithMetrics(s.metrics),
		gateway.WithModerator(s.moderator),
	}
	if s.gatewayConfig != nil {
		gwOpts = append(gwOpts, gateway.WithConfig(*s.gatewayConfig))
	}
	gw, err := gateway.New(seats, actors, rng, gwOpts...)
	if err != nil {
		return nil, err
	}

	storeOpts := []history.Option{history.WithSinks(s.sinks...), history.WithLogger(logger)}
	if s.clock != nil {
		storeOpts = append(storeOpts, history.WithClock(s.clock))
	}

	return &Match{
		id:      s.matchID,
		seed:    s.seed,
		seats:   seats,
		names:   game.Names(seats),
		actors:  actors,
		gw:      gw,
		store:   history.NewStore(s.matchID, game.Names(seats), storeOpts...),
		leader:  rng.Intn(game.SeatCount),
		logger:  logger,
		tracer:  s.tracer,
		metrics: s.metrics,
		events:  s.events,
		phase:   PhaseSetup,
	}, nil
}

// ID returns the match identifier.
func (m *Match) ID() string { return m.id }

// Seed returns the seed of the match random source.
func (m *Match) Seed() int64 { return m.seed }

// Seats returns the seats with their hidden roles.
func (m *Match) Seats() []game.Seat { return append([]game.Seat(nil), m.seats...) }

// History returns the match timeline.
func (m *Match) History() *history.Store { return m.store }

// Phase returns the current phase.
func (m *Match) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Round returns the round in progress, or the last one played.
func (m *Match) Round() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.round
}

// Leader returns the current leader seat.
func (m *Match) Leader() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.names[m.leader]
}

// Humans returns the seats driven by a HumanActor.
func (m *Match) Humans() map[string]*actor.HumanActor {
	out := make(map[string]*actor.HumanActor)
	for name, a := range m.actors {
		if h, ok := a.(*actor.HumanActor); ok {
			out[name] = h
		}
	}
	return out
}

// Run plays the match to completion. It returns early only when ctx is
// canceled or an invariant is broken; actor failures never stop a match.
func (m *Match) Run(ctx context.Context) (history.Result, error) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return history.Result{}, errors.Newf(errors.CodeInvalidInput, "match %s already run", m.id)
	}
	m.started = true
	m.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "avalon.match",
		trace.WithAttributes(telemetry.MatchAttributes(m.id, m.seed)...))
	defer span.End()

	res, err := m.run(ctx)
	if err != nil {
		m.setPhase(ctx, PhaseAborted)
		m.metrics.RecordError(ctx, err, "engine")
		m.emit(ctx, EventMatchAborted, map[string]any{"error": err.Error()})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.ErrorContext(ctx, "match aborted", "error", err)
		return history.Result{}, err
	}

	span.SetAttributes(attribute.String(telemetry.AttrMatchWinner, string(res.Winner)))
	m.metrics.RecordMatch(ctx, string(res.Winner), res.Assassination != nil)
	return res, nil
}

func (m *Match) run(ctx context.Context) (history.Result, error) {
	m.store.Start(ctx)
	m.logger.InfoContext(ctx, "match started", "seed", m.seed, "leader", m.Leader())
	m.emit(ctx, EventMatchStarted, map[string]any{"seats": m.names, "leader": m.Leader()})

	for round := 1; round <= game.RoundCount; round++ {
		if err := m.playRound(ctx, round); err != nil {
			return history.Result{}, err
		}
		if _, done := m.tally.Threshold(); done {
			break
		}
	}

	th, done := m.tally.Threshold()
	if !done {
		return history.Result{}, errors.New(errors.CodeInvariantViolation, "five rounds without a decided match", nil).
			WithContext("results", m.tally.Results())
	}

	res := history.Result{
		Winner:         th.Faction,
		MissionResults: m.tally.Results(),
		GoodWins:       m.tally.GoodWins(),
		EvilWins:       m.tally.EvilWins(),
	}
	if th.Faction == game.Good {
		a, err := m.assassinate(ctx)
		if err != nil {
			return history.Result{}, err
		}
		res.Assassination = &a
		res.Winner = a.Winner()
	}
	res.Players = m.players()

	if err := m.store.RecordResult(ctx, res); err != nil {
		return history.Result{}, err
	}
	res.MatchID = m.id

	m.setPhase(ctx, PhaseComplete)
	m.logger.InfoContext(ctx, "match completed",
		"winner", res.Winner,
		"good_wins", res.GoodWins,
		"evil_wins", res.EvilWins,
	)
	m.emit(ctx, EventMatchCompleted, map[string]any{"result": res})
	return res, nil
}

func (m *Match) playRound(ctx context.Context, round int) error {
	teamSize := game.TeamSize(round)
	ctx, span := m.tracer.Start(ctx, "avalon.round",
		trace.WithAttributes(telemetry.RoundAttributes(round, teamSize)...))
	defer span.End()

	m.mu.Lock()
	m.round = round
	m.mu.Unlock()
	if err := m.store.BeginRound(round, teamSize); err != nil {
		return err
	}

	var team []string
	for rejections := 0; ; rejections++ {
		if rejections > game.MaxRejections {
			return errors.New(errors.CodeInvariantViolation, "too many rejections in round", nil).
				WithContext("round", round).
				WithContext("rejections", rejections)
		}
		p, err := m.playProposal(ctx, round, teamSize, rejections)
		if err != nil {
			return err
		}
		if p.Approved {
			team = p.FinalTeam
			break
		}
		m.mu.Lock()
		m.leader = (m.leader + 1) % game.SeatCount
		m.mu.Unlock()
	}

	return m.playMission(ctx, round, teamSize, team)
}

func (m *Match) playProposal(ctx context.Context, round, teamSize, rejections int) (history.Proposal, error) {
	leader := m.Leader()
	forced := rejections == game.MaxRejections
	attempt := rejections + 1

	ctx, span := m.tracer.Start(ctx, "avalon.proposal",
		trace.WithAttributes(telemetry.ProposalAttributes(attempt, leader, forced)...))
	defer span.End()

	c := actor.Context{
		Round:    round,
		TeamSize: teamSize,
		Attempt:  attempt,
		Status:   m.tally.Status(rejections),
		Leader:   leader,
		Players:  m.names,
	}

	m.setPhase(ctx, PhasePropose)
	initial, err := m.gw.Propose(ctx, leader, m.store.PublicMemory(), c)
	if err != nil {
		return history.Proposal{}, err
	}
	if err := m.store.BeginProposal(leader, initial, forced); err != nil {
		return history.Proposal{}, err
	}
	m.emit(ctx, EventTeamProposed, map[string]any{
		"leader": leader, "team": initial, "attempt": attempt, "forced": forced,
	})

	if forced {
		m.logger.InfoContext(ctx, "forced mission", "round", round, "leader", leader, "team", initial)
		p, err := m.store.CompleteProposal(ctx, initial, map[string]bool{}, true)
		if err != nil {
			return history.Proposal{}, err
		}
		m.closeProposal(ctx, span, p)
		return p, nil
	}

	c.Team = initial
	if err := m.discuss(ctx, c); err != nil {
		return history.Proposal{}, err
	}

	m.setPhase(ctx, PhaseFinalize)
	open, _ := m.store.OpenProposal()
	c.Discussion = open.Discussion
	c.Tag = ""
	final, err := m.gw.Finalize(ctx, leader, m.store.PublicMemory(), c)
	if err != nil {
		return history.Proposal{}, err
	}

	m.setPhase(ctx, PhaseVote)
	c.Team = final
	public := m.store.PublicMemory()
	votes := make(map[string]bool, len(m.names))
	approvals := 0
	for _, seat := range m.names {
		ok, err := m.gw.Vote(ctx, seat, public, c)
		if err != nil {
			return history.Proposal{}, err
		}
		votes[seat] = ok
		if ok {
			approvals++
		}
	}

	p, err := m.store.CompleteProposal(ctx, final, votes, approvals >= game.ApprovalsNeeded)
	if err != nil {
		return history.Proposal{}, err
	}
	m.closeProposal(ctx, span, p)
	return p, nil
}

// discuss runs the leader's opening, one comment from every other seat
// clockwise, then the leader's closing.
func (m *Match) discuss(ctx context.Context, c actor.Context) error {
	m.setPhase(ctx, PhaseDiscuss)

	leaderIdx := m.indexOf(c.Leader)
	type turn struct {
		seat string
		tag  string
	}
	turns := []turn{{c.Leader, history.TagOpen}}
	for i := 1; i < game.SeatCount; i++ {
		turns = append(turns, turn{m.names[(leaderIdx+i)%game.SeatCount], history.TagComment})
	}
	turns = append(turns, turn{c.Leader, history.TagClose})

	for _, t := range turns {
		open, _ := m.store.OpenProposal()
		c.Discussion = open.Discussion
		c.Tag = t.tag
		text, err := m.gw.Discuss(ctx, t.seat, m.store.PublicMemory(), c)
		if err != nil {
			return err
		}
		if err := m.store.AppendDiscussion(t.seat, text, t.tag); err != nil {
			return err
		}
		m.emit(ctx, EventComment, map[string]any{"speaker": t.seat, "text": text, "tag": t.tag})
	}
	return nil
}

func (m *Match) playMission(ctx context.Context, round, teamSize int, team []string) error {
	m.setPhase(ctx, PhaseMission)
	c := actor.Context{
		Round:    round,
		TeamSize: teamSize,
		Status:   m.tally.Status(0),
		Leader:   m.Leader(),
		Players:  m.names,
		Team:     team,
	}
	public := m.store.PublicMemory()

	actions := make(map[string]bool, len(team))
	success := true
	for _, seat := range team {
		ok, err := m.gw.MissionAction(ctx, seat, public, c)
		if err != nil {
			return err
		}
		actions[seat] = ok
		success = success && ok
	}

	mission, err := m.store.CompleteMission(ctx, team, actions, success)
	if err != nil {
		return err
	}
	if _, _, err := m.tally.Record(success); err != nil {
		return err
	}
	trace.SpanFromContext(ctx).SetAttributes(telemetry.MissionAttributes(success, mission.Fails())...)

	m.logger.InfoContext(ctx, "mission completed",
		"round", round,
		"team", team,
		"success", success,
		"fails", mission.Fails(),
	)
	m.emit(ctx, EventMission, map[string]any{
		"team": team, "success": success, "fails": mission.Fails(),
		"good_wins": m.tally.GoodWins(), "evil_wins": m.tally.EvilWins(),
	})
	m.setPhase(ctx, PhaseRoundComplete)
	return nil
}

func (m *Match) assassinate(ctx context.Context) (game.Assassination, error) {
	m.setPhase(ctx, PhaseAssassination)
	assassin, ok := game.SeatWithRole(m.seats, game.Assassin)
	if !ok {
		return game.Assassination{}, errors.New(errors.CodeInvariantViolation, "no assassin seated", nil)
	}

	c := actor.Context{
		Round:   m.Round(),
		Status:  m.tally.Status(0),
		Leader:  m.Leader(),
		Players: m.names,
	}
	name, err := m.gw.Assassinate(ctx, assassin.Name, m.store.PublicMemory(), c)
	if err != nil {
		return game.Assassination{}, err
	}
	target, ok := game.SeatByName(m.seats, name)
	if !ok {
		return game.Assassination{}, errors.Newf(errors.CodeInvariantViolation, "assassination target %q is not seated", name)
	}
	a, err := game.ResolveAssassination(assassin, target)
	if err != nil {
		return game.Assassination{}, err
	}
	if err := m.store.RecordAssassination(ctx, a); err != nil {
		return game.Assassination{}, err
	}

	m.logger.InfoContext(ctx, "assassination", "target", target.Name, "success", a.Success)
	m.emit(ctx, EventAssassination, map[string]any{
		"assassin": assassin.Name, "target": target.Name, "merlin_found": a.Success,
	})
	return a, nil
}

func (m *Match) closeProposal(ctx context.Context, span trace.Span, p history.Proposal) {
	span.SetAttributes(telemetry.ProposalOutcomeAttributes(p.Approved, p.ApproveCount())...)
	m.logger.DebugContext(ctx, "proposal closed",
		"round", p.Round,
		"attempt", p.Attempt,
		"leader", p.Leader,
		"team", p.FinalTeam,
		"approved", p.Approved,
		"forced", p.Forced,
	)
	m.emit(ctx, EventProposalClosed, map[string]any{"proposal": p})
}

func (m *Match) players() []history.Player {
	out := make([]history.Player, len(m.seats))
	for i, s := range m.seats {
		info := m.gw.Info(s.Name)
		out[i] = history.Player{
			Name:        s.Name,
			Role:        s.Role,
			Faction:     s.Faction(),
			ActorType:   info.Type,
			ActorConfig: info.Config,
		}
	}
	return out
}

func (m *Match) indexOf(name string) int {
	for i, n := range m.names {
		if n == name {
			return i
		}
	}
	return 0
}

func (m *Match) setPhase(ctx context.Context, p Phase) {
	m.mu.Lock()
	changed := m.phase != p
	m.phase = p
	m.mu.Unlock()
	if changed {
		m.emit(ctx, EventPhaseChanged, nil)
	}
}

func (m *Match) emit(ctx context.Context, t EventType, payload map[string]any) {
	m.mu.Lock()
	round, phase := m.round, m.phase
	m.mu.Unlock()
	m.events.Emit(ctx, NewEvent(t, m.id, round, phase, payload))
}
