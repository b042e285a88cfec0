// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/game"
)

// Store is the append-only timeline of one match. Records are added in
// phase order and never changed once their phase completes. Completed
// records are forwarded to the configured sinks.
type Store struct {
	mu            sync.RWMutex
	matchID       string
	seats         []string
	rounds        []Round
	open          *Proposal
	assassination *game.Assassination
	result        *Result
	seq           int
	started       time.Time
	sinks         []TimelineSink
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSinks forwards completed records to the given sinks.
func WithSinks(sinks ...TimelineSink) Option {
	return func(s *Store) {
		for _, sink := range sinks {
			if sink != nil {
				s.sinks = append(s.sinks, sink)
			}
		}
	}
}

// WithLogger sets the logger used for sink failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates the timeline of a match whose seats are named in seat
// order.
func NewStore(matchID string, seats []string, opts ...Option) *Store {
	s := &Store{
		matchID: matchID,
		seats:   cloneStrings(seats),
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.now()
	return s
}

// MatchID returns the identifier of the recorded match.
func (s *Store) MatchID() string { return s.matchID }

// Start announces the match to the sinks.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	rec := s.nextRecord(RecordMatchStarted)
	rec.Seats = cloneStrings(s.seats)
	s.mu.Unlock()
	s.emit(ctx, rec)
}

// BeginRound opens the next round.
func (s *Store) BeginRound(number, teamSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result != nil {
		return violation("round begun after result", number)
	}
	if n := len(s.rounds); n > 0 && s.rounds[n-1].Mission == nil {
		return violation("previous round has no mission", number)
	}
	if number != len(s.rounds)+1 {
		return violation("rounds must be consecutive", number)
	}
	s.rounds = append(s.rounds, Round{Number: number, TeamSize: teamSize})
	return nil
}

// BeginProposal opens a proposal in the current round.
func (s *Store) BeginProposal(leader string, initialTeam []string, forced bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.currentRound()
	if err != nil {
		return err
	}
	if s.open != nil {
		return violation("proposal already open", r.Number)
	}
	if r.Mission != nil {
		return violation("round already has a mission", r.Number)
	}
	if len(initialTeam) != r.TeamSize {
		return violation("initial team has wrong size", r.Number)
	}
	s.open = &Proposal{
		Round:       r.Number,
		Attempt:     len(r.Proposals) + 1,
		Leader:      leader,
		InitialTeam: cloneStrings(initialTeam),
		Forced:      forced,
		At:          s.now(),
	}
	return nil
}

// AppendDiscussion adds a comment to the open proposal. It is visible in
// PublicMemory as soon as this returns.
func (s *Store) AppendDiscussion(speaker, text, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		return violation("no open proposal for discussion", 0)
	}
	if s.open.Forced {
		return violation("forced proposals have no discussion", s.open.Round)
	}
	s.open.Discussion = append(s.open.Discussion, DiscussionEntry{
		Speaker: speaker,
		Text:    text,
		Tag:     tag,
		At:      s.now(),
	})
	return nil
}

// CompleteProposal closes the open proposal with its final team and votes.
func (s *Store) CompleteProposal(ctx context.Context, finalTeam []string, votes map[string]bool, approved bool) (Proposal, error) {
	s.mu.Lock()
	r, err := s.currentRound()
	if err != nil {
		s.mu.Unlock()
		return Proposal{}, err
	}
	if s.open == nil {
		s.mu.Unlock()
		return Proposal{}, violation("no open proposal", r.Number)
	}
	p := s.open
	if len(finalTeam) != r.TeamSize {
		s.mu.Unlock()
		return Proposal{}, violation("final team has wrong size", r.Number)
	}
	if p.Forced && (len(votes) != 0 || !approved) {
		s.mu.Unlock()
		return Proposal{}, violation("forced proposal must be approved without votes", r.Number)
	}
	p.FinalTeam = cloneStrings(finalTeam)
	p.Votes = cloneBools(votes)
	p.Approved = approved
	r.Proposals = append(r.Proposals, *p)
	s.open = nil

	out := p.clone()
	rec := s.nextRecord(RecordProposal)
	rec.Round = r.Number
	rec.Proposal = &out
	s.mu.Unlock()

	s.emit(ctx, rec)
	return out.clone(), nil
}

// CompleteMission closes the current round with its mission outcome.
func (s *Store) CompleteMission(ctx context.Context, team []string, actions map[string]bool, success bool) (Mission, error) {
	s.mu.Lock()
	r, err := s.currentRound()
	if err != nil {
		s.mu.Unlock()
		return Mission{}, err
	}
	if s.open != nil || len(r.Proposals) == 0 || !r.Proposals[len(r.Proposals)-1].Approved {
		s.mu.Unlock()
		return Mission{}, violation("mission without an approved proposal", r.Number)
	}
	if r.Mission != nil {
		s.mu.Unlock()
		return Mission{}, violation("round already has a mission", r.Number)
	}
	if len(team) != r.TeamSize || len(actions) != len(team) {
		s.mu.Unlock()
		return Mission{}, violation("malformed mission size", r.Number)
	}
	allSucceeded := true
	for _, name := range team {
		ok, present := actions[name]
		if !present {
			s.mu.Unlock()
			return Mission{}, violation("mission action missing for team member", r.Number)
		}
		allSucceeded = allSucceeded && ok
	}
	if allSucceeded != success {
		s.mu.Unlock()
		return Mission{}, violation("mission result disagrees with actions", r.Number)
	}

	m := Mission{
		Round:   r.Number,
		Team:    cloneStrings(team),
		Actions: cloneBools(actions),
		Success: success,
		At:      s.now(),
	}
	r.Mission = &m

	out := m.clone()
	rec := s.nextRecord(RecordRound)
	rec.Round = r.Number
	rec.TeamSize = r.TeamSize
	rec.Mission = &out
	s.mu.Unlock()

	s.emit(ctx, rec)
	return out.clone(), nil
}

// RecordAssassination stores the assassination outcome.
func (s *Store) RecordAssassination(ctx context.Context, a game.Assassination) error {
	s.mu.Lock()
	if s.assassination != nil {
		s.mu.Unlock()
		return violation("assassination already recorded", len(s.rounds))
	}
	s.assassination = &a
	out := a
	rec := s.nextRecord(RecordAssassination)
	rec.Assassination = &out
	s.mu.Unlock()

	s.emit(ctx, rec)
	return nil
}

// RecordResult stores the final result. It can be recorded once.
func (s *Store) RecordResult(ctx context.Context, r Result) error {
	s.mu.Lock()
	if s.result != nil {
		s.mu.Unlock()
		return violation("result already recorded", len(s.rounds))
	}
	r.MatchID = s.matchID
	r.MissionResults = append([]bool(nil), r.MissionResults...)
	r.Players = append([]Player(nil), r.Players...)
	s.result = &r
	out := r
	rec := s.nextRecord(RecordResult)
	rec.Result = &out
	s.mu.Unlock()

	s.emit(ctx, rec)
	return nil
}

// Rounds returns a copy of the recorded rounds.
func (s *Store) Rounds() []Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Round, len(s.rounds))
	for i, r := range s.rounds {
		out[i] = r.clone()
	}
	return out
}

// OpenProposal returns the proposal in progress, if any.
func (s *Store) OpenProposal() (Proposal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.open == nil {
		return Proposal{}, false
	}
	return s.open.clone(), true
}

// Log assembles the full match log from the recorded facts.
func (s *Store) Log() MatchLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := MatchLog{
		MatchID:   s.matchID,
		Timestamp: s.started,
		Seats:     cloneStrings(s.seats),
	}
	for _, r := range s.rounds {
		log.Rounds = append(log.Rounds, r.clone())
	}
	if s.assassination != nil {
		a := *s.assassination
		log.Assassination = &a
	}
	if s.result != nil {
		r := *s.result
		log.Result = &r
		log.Players = append([]Player(nil), r.Players...)
	}
	return log
}

func (s *Store) currentRound() (*Round, error) {
	if len(s.rounds) == 0 {
		return nil, violation("no round in progress", 0)
	}
	return &s.rounds[len(s.rounds)-1], nil
}

// nextRecord must be called under lock.
func (s *Store) nextRecord(kind RecordKind) Record {
	s.seq++
	return Record{
		MatchID: s.matchID,
		Seq:     s.seq,
		Kind:    kind,
		At:      s.now(),
	}
}

// emit writes outside the lock; a failing sink never stops the match.
func (s *Store) emit(ctx context.Context, rec Record) {
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, rec); err != nil {
			s.logger.Warn("timeline sink write failed",
				"match_id", s.matchID,
				"kind", string(rec.Kind),
				"seq", rec.Seq,
				"error", err,
			)
		}
	}
}

func violation(msg string, round int) *errors.AvalonError {
	return errors.New(errors.CodeInvariantViolation, msg, nil).WithContext("round", round)
}
