// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

// Package actor defines the decision contract every seat is driven through.
// Automated and human-backed seats are variants behind the same interface.
package actor

import (
	"context"
	"fmt"

	"github.com/jllopis/avalon/pkg/game"
	"github.com/jllopis/avalon/pkg/history"
)

// Kind is the decision being requested.
type Kind string

const (
	KindPropose       Kind = "propose"
	KindFinalize      Kind = "finalize"
	KindDiscuss       Kind = "discuss"
	KindVote          Kind = "vote"
	KindMissionAction Kind = "missionAction"
	KindAssassinate   Kind = "assassinate"
)

// Decision tokens.
const (
	Approve = "APPROVE"
	Reject  = "REJECT"
	Success = "SUCCESS"
	Fail    = "FAIL"
)

// Context is the situational part of a request.
type Context struct {
	Round    int `json:"round"`
	TeamSize int `json:"team_size"`
	Attempt  int `json:"attempt"`
	// Status is the score line, e.g. "Mission Status: 1 Success, 0 Fail | ...".
	Status  string   `json:"status"`
	Leader  string   `json:"leader"`
	Players []string `json:"players"`
	// Team is the team under discussion, vote or on the mission.
	Team []string `json:"team,omitempty"`
	// Discussion holds the comments already made on the current proposal.
	Discussion []history.DiscussionEntry `json:"discussion,omitempty"`
	// Tag is the discussion slot for KindDiscuss: open, comment or close.
	Tag string `json:"tag,omitempty"`
	// Options are the valid tokens for the answer.
	Options []string `json:"options"`
}

// Request asks one seat for one decision.
type Request struct {
	ID        string               `json:"id"`
	MatchID   string               `json:"match_id"`
	Kind      Kind                 `json:"kind"`
	Seat      string               `json:"seat"`
	Knowledge game.Knowledge       `json:"knowledge"`
	Public    history.PublicMemory `json:"public"`
	Context   Context              `json:"context"`
}

// Actor produces a raw free-text answer for a request. The gateway turns
// the answer into a legal decision.
type Actor interface {
	Submit(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to Actor.
type Func func(ctx context.Context, req Request) (string, error)

// Submit implements Actor.
func (f Func) Submit(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// Info describes an actor for match logs.
type Info struct {
	Type   string `json:"type"`
	Config string `json:"config,omitempty"`
	// Interactive actors wait for a person and get no timeout by default.
	Interactive bool `json:"interactive"`
}

// Describer is implemented by actors that can describe themselves.
type Describer interface {
	Info() Info
}

// InfoOf returns the actor's self description or its Go type.
func InfoOf(a Actor) Info {
	if d, ok := a.(Describer); ok {
		return d.Info()
	}
	return Info{Type: fmt.Sprintf("%T", a)}
}
