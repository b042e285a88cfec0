// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

// Package history records the public timeline of a match and projects it
// back to actors as shared context.
package history

import (
	"time"

	"github.com/jllopis/avalon/pkg/game"
)

// Discussion tags emitted by the engine.
const (
	TagOpen    = "open"
	TagComment = "comment"
	TagClose   = "close"
)

// DiscussionEntry is one comment in a proposal's transcript.
type DiscussionEntry struct {
	Speaker string    `json:"player" yaml:"player"`
	Text    string    `json:"comment" yaml:"comment"`
	Tag     string    `json:"tag,omitempty" yaml:"tag,omitempty"`
	At      time.Time `json:"at" yaml:"at"`
}

// Proposal is one leader-initiated team selection cycle.
type Proposal struct {
	Round       int               `json:"round" yaml:"round"`
	Attempt     int               `json:"attempt" yaml:"attempt"`
	Leader      string            `json:"leader" yaml:"leader"`
	InitialTeam []string          `json:"initial_team" yaml:"initial_team"`
	Discussion  []DiscussionEntry `json:"discussion" yaml:"discussion"`
	FinalTeam   []string          `json:"final_team" yaml:"final_team"`
	Votes       map[string]bool   `json:"votes" yaml:"votes"`
	Approved    bool              `json:"approved" yaml:"approved"`
	Forced      bool              `json:"forced_mission" yaml:"forced_mission"`
	At          time.Time         `json:"at" yaml:"at"`
}

// ApproveCount counts approving votes.
func (p Proposal) ApproveCount() int {
	n := 0
	for _, v := range p.Votes {
		if v {
			n++
		}
	}
	return n
}

// Mission is the execution of an approved or forced team.
type Mission struct {
	Round   int             `json:"round" yaml:"round"`
	Team    []string        `json:"team" yaml:"team"`
	Actions map[string]bool `json:"actions" yaml:"actions"`
	Success bool            `json:"success" yaml:"success"`
	At      time.Time       `json:"at" yaml:"at"`
}

// Fails counts fail cards.
func (m Mission) Fails() int {
	n := 0
	for _, ok := range m.Actions {
		if !ok {
			n++
		}
	}
	return n
}

// Round groups the proposals of one mission and its outcome.
type Round struct {
	Number    int        `json:"round_number" yaml:"round_number"`
	TeamSize  int        `json:"team_size" yaml:"team_size"`
	Proposals []Proposal `json:"proposals" yaml:"proposals"`
	Mission   *Mission   `json:"mission,omitempty" yaml:"mission,omitempty"`
}

// Player reveals a seat after the match ends.
type Player struct {
	Name        string       `json:"name" yaml:"name"`
	Role        game.Role    `json:"role" yaml:"role"`
	Faction     game.Faction `json:"faction" yaml:"faction"`
	ActorType   string       `json:"ai_type" yaml:"ai_type"`
	ActorConfig string       `json:"ai_config" yaml:"ai_config"`
}

// Result is the final outcome of a match.
type Result struct {
	MatchID        string              `json:"match_id" yaml:"match_id"`
	Winner         game.Faction        `json:"winner" yaml:"winner"`
	MissionResults []bool              `json:"mission_results" yaml:"mission_results"`
	GoodWins       int                 `json:"good_wins" yaml:"good_wins"`
	EvilWins       int                 `json:"evil_wins" yaml:"evil_wins"`
	Assassination  *game.Assassination `json:"assassination,omitempty" yaml:"assassination,omitempty"`
	Players        []Player            `json:"players" yaml:"players"`
}

// RecordKind identifies a timeline record.
type RecordKind string

const (
	RecordMatchStarted  RecordKind = "match_started"
	RecordProposal      RecordKind = "proposal"
	RecordRound         RecordKind = "round"
	RecordAssassination RecordKind = "assassination"
	RecordResult        RecordKind = "result"
)

// Record is the unit written to a TimelineSink. Exactly one payload field is
// set, matching Kind.
type Record struct {
	MatchID       string              `json:"match_id" yaml:"match_id"`
	Seq           int                 `json:"seq" yaml:"seq"`
	Kind          RecordKind          `json:"kind" yaml:"kind"`
	At            time.Time           `json:"at" yaml:"at"`
	Round         int                 `json:"round,omitempty" yaml:"round,omitempty"`
	TeamSize      int                 `json:"team_size,omitempty" yaml:"team_size,omitempty"`
	Seats         []string            `json:"seats,omitempty" yaml:"seats,omitempty"`
	Proposal      *Proposal           `json:"proposal,omitempty" yaml:"proposal,omitempty"`
	Mission       *Mission            `json:"mission,omitempty" yaml:"mission,omitempty"`
	Assassination *game.Assassination `json:"assassination,omitempty" yaml:"assassination,omitempty"`
	Result        *Result             `json:"result,omitempty" yaml:"result,omitempty"`
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneBools(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (p Proposal) clone() Proposal {
	p.InitialTeam = cloneStrings(p.InitialTeam)
	p.FinalTeam = cloneStrings(p.FinalTeam)
	p.Votes = cloneBools(p.Votes)
	if p.Discussion != nil {
		d := make([]DiscussionEntry, len(p.Discussion))
		copy(d, p.Discussion)
		p.Discussion = d
	}
	return p
}

func (m Mission) clone() Mission {
	m.Team = cloneStrings(m.Team)
	m.Actions = cloneBools(m.Actions)
	return m
}

func (r Round) clone() Round {
	ps := make([]Proposal, len(r.Proposals))
	for i, p := range r.Proposals {
		ps[i] = p.clone()
	}
	r.Proposals = ps
	if r.Mission != nil {
		m := r.Mission.clone()
		r.Mission = &m
	}
	return r
}
