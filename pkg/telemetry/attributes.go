// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration for matches: span
// attributes, decision metrics, exporters and trace-aware logging.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Avalon telemetry.
const (
	// Match attributes
	AttrMatchID     = "avalon.match.id"
	AttrMatchSeed   = "avalon.match.seed"
	AttrMatchWinner = "avalon.match.winner"
	AttrMatchPhase  = "avalon.match.phase"

	// Round and proposal attributes
	AttrRound         = "avalon.round.number"
	AttrRoundTeamSize = "avalon.round.team_size"
	AttrAttempt       = "avalon.proposal.attempt"
	AttrLeader        = "avalon.proposal.leader"
	AttrForced        = "avalon.proposal.forced"
	AttrApproved      = "avalon.proposal.approved"
	AttrApprovals     = "avalon.proposal.approvals"

	// Decision attributes
	AttrSeat           = "avalon.seat"
	AttrDecisionKind   = "avalon.decision.kind"
	AttrActorType      = "avalon.actor.type"
	AttrFallback       = "avalon.decision.fallback"
	AttrFallbackReason = "avalon.decision.fallback_reason"
	AttrAttempts       = "avalon.decision.attempts"

	// Mission attributes
	AttrMissionSuccess = "avalon.mission.success"
	AttrMissionFails   = "avalon.mission.fails"
)

// MatchAttributes returns attributes for the match span.
func MatchAttributes(matchID string, seed int64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrMatchID, matchID)}
	if seed != 0 {
		attrs = append(attrs, attribute.Int64(AttrMatchSeed, seed))
	}
	return attrs
}

// RoundAttributes returns attributes for a round span.
func RoundAttributes(round, teamSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrRound, round),
		attribute.Int(AttrRoundTeamSize, teamSize),
	}
}

// ProposalAttributes returns attributes for a proposal span.
func ProposalAttributes(attempt int, leader string, forced bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAttempt, attempt),
		attribute.String(AttrLeader, leader),
		attribute.Bool(AttrForced, forced),
	}
}

// ProposalOutcomeAttributes returns the attributes set when a proposal closes.
func ProposalOutcomeAttributes(approved bool, approvals int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(AttrApproved, approved),
		attribute.Int(AttrApprovals, approvals),
	}
}

// DecisionAttributes returns attributes for a decision span.
func DecisionAttributes(seat, kind, actorType string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSeat, seat),
		attribute.String(AttrDecisionKind, kind),
	}
	if actorType != "" {
		attrs = append(attrs, attribute.String(AttrActorType, actorType))
	}
	return attrs
}

// DecisionOutcomeAttributes describes how a decision was resolved.
func DecisionOutcomeAttributes(attempts int, fallback bool, reason string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool(AttrFallback, fallback),
	}
	if attempts > 0 {
		attrs = append(attrs, attribute.Int(AttrAttempts, attempts))
	}
	if fallback && reason != "" {
		if len(reason) > 200 {
			reason = reason[:200] + "..."
		}
		attrs = append(attrs, attribute.String(AttrFallbackReason, reason))
	}
	return attrs
}

// MissionAttributes returns attributes for a completed mission.
func MissionAttributes(success bool, fails int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(AttrMissionSuccess, success),
		attribute.Int(AttrMissionFails, fails),
	}
}
