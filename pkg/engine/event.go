package engine

import (
	"context"
	"time"
)

// Phase is the state of a match.
type Phase string

const (
	PhaseSetup         Phase = "SETUP"
	PhasePropose       Phase = "PROPOSE"
	PhaseDiscuss       Phase = "DISCUSS"
	PhaseFinalize      Phase = "FINALIZE"
	PhaseVote          Phase = "VOTE"
	PhaseMission       Phase = "MISSION"
	PhaseRoundComplete Phase = "ROUND_COMPLETE"
	PhaseAssassination Phase = "ASSASSINATION"
	PhaseComplete      Phase = "COMPLETE"
	PhaseAborted       Phase = "ABORTED"
)

// EventType identifies something that happened in a match.
type EventType string

const (
	EventMatchStarted   EventType = "match.started"
	EventPhaseChanged   EventType = "match.phase"
	EventTeamProposed   EventType = "proposal.team"
	EventComment        EventType = "proposal.comment"
	EventProposalClosed EventType = "proposal.closed"
	EventMission        EventType = "mission.completed"
	EventAssassination  EventType = "match.assassination"
	EventMatchCompleted EventType = "match.completed"
	EventMatchAborted   EventType = "match.aborted"
)

// Event carries public facts only; roles appear in the completed event.
type Event struct {
	Type      EventType
	MatchID   string
	Round     int
	Phase     Phase
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives match events. Emit is called from the match
// goroutine and should not block.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// EventEmitterFunc adapts a function to EventEmitter.
type EventEmitterFunc func(ctx context.Context, event Event)

// Emit implements EventEmitter.
func (f EventEmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds an event with timestamp.
func NewEvent(eventType EventType, matchID string, round int, phase Phase, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		MatchID:   matchID,
		Round:     round,
		Phase:     phase,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
