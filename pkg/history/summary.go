// SPDX-License-Identifier: Apache-2.0

package history

import (
	"fmt"
	"strings"
)

// ProposalNote is a proposal led by the summarized seat.
type ProposalNote struct {
	Round    int      `json:"round"`
	Team     []string `json:"team"`
	Approved bool     `json:"approved"`
}

// CommentNote is a discussion comment by the summarized seat.
type CommentNote struct {
	Round int    `json:"round"`
	Text  string `json:"comment"`
}

// SeatSummary is the public behaviour of one seat so far.
type SeatSummary struct {
	Seat              string         `json:"seat"`
	MissionsOn        []int          `json:"missions_on"`
	MissionsSucceeded []int          `json:"missions_succeeded"`
	MissionsFailed    []int          `json:"missions_failed"`
	Proposals         []ProposalNote `json:"proposals_made"`
	VotesApprove      int            `json:"votes_approve"`
	VotesReject       int            `json:"votes_reject"`
	Comments          []CommentNote  `json:"discussion_comments"`
}

// SeatSummary aggregates the public record of one seat.
func (s *Store) SeatSummary(name string) SeatSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := SeatSummary{Seat: name}
	for _, r := range s.rounds {
		for _, p := range r.Proposals {
			if p.Leader == name {
				sum.Proposals = append(sum.Proposals, ProposalNote{
					Round:    r.Number,
					Team:     cloneStrings(p.FinalTeam),
					Approved: p.Approved,
				})
			}
			if v, ok := p.Votes[name]; ok {
				if v {
					sum.VotesApprove++
				} else {
					sum.VotesReject++
				}
			}
			for _, d := range p.Discussion {
				if d.Speaker == name {
					sum.Comments = append(sum.Comments, CommentNote{Round: r.Number, Text: d.Text})
				}
			}
		}
		if r.Mission == nil {
			continue
		}
		for _, member := range r.Mission.Team {
			if member != name {
				continue
			}
			sum.MissionsOn = append(sum.MissionsOn, r.Number)
			if r.Mission.Success {
				sum.MissionsSucceeded = append(sum.MissionsSucceeded, r.Number)
			} else {
				sum.MissionsFailed = append(sum.MissionsFailed, r.Number)
			}
		}
	}
	return sum
}

// Text renders the summary as a single prompt paragraph.
func (s SeatSummary) Text() string {
	if len(s.MissionsOn) == 0 && len(s.Proposals) == 0 && s.VotesApprove+s.VotesReject == 0 && len(s.Comments) == 0 {
		return fmt.Sprintf("No behavioral data for %s yet.", s.Seat)
	}
	var parts []string
	if len(s.MissionsOn) > 0 {
		parts = append(parts, fmt.Sprintf("on missions %v (failed: %v)", s.MissionsOn, s.MissionsFailed))
	}
	if n := len(s.Proposals); n > 0 {
		approved := 0
		for _, p := range s.Proposals {
			if p.Approved {
				approved++
			}
		}
		parts = append(parts, fmt.Sprintf("led %d proposals (%d approved)", n, approved))
	}
	parts = append(parts, fmt.Sprintf("voted %d approve / %d reject", s.VotesApprove, s.VotesReject))
	if n := len(s.Comments); n > 0 {
		parts = append(parts, fmt.Sprintf("last said %q", s.Comments[n-1].Text))
	}
	return s.Seat + ": " + strings.Join(parts, "; ")
}
