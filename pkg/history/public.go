// SPDX-License-Identifier: Apache-2.0

package history

import (
	"fmt"
	"strings"
)

// PublicMission is the visible outcome of a mission: who went and how many
// fail cards were played, never who played them.
type PublicMission struct {
	Team      []string `json:"team"`
	Successes int      `json:"successes"`
	Fails     int      `json:"fails"`
	Success   bool     `json:"success"`
}

// PublicRound is the role-blind view of a round.
type PublicRound struct {
	Number    int            `json:"round_number"`
	TeamSize  int            `json:"team_size"`
	Proposals []Proposal     `json:"proposals"`
	Mission   *PublicMission `json:"mission,omitempty"`
}

// PublicMemory is the shared context every seat may see. It is rebuilt from
// recorded facts and carries no role information.
type PublicMemory struct {
	Seats          []string      `json:"seats"`
	Rounds         []PublicRound `json:"rounds"`
	Open           *Proposal     `json:"open,omitempty"`
	MissionResults []bool        `json:"mission_results"`
}

// PublicMemory projects the timeline for actors.
func (s *Store) PublicMemory() PublicMemory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pm := PublicMemory{Seats: cloneStrings(s.seats)}
	for _, r := range s.rounds {
		pr := PublicRound{Number: r.Number, TeamSize: r.TeamSize}
		for _, p := range r.Proposals {
			pr.Proposals = append(pr.Proposals, p.clone())
		}
		if r.Mission != nil {
			fails := r.Mission.Fails()
			pr.Mission = &PublicMission{
				Team:      cloneStrings(r.Mission.Team),
				Successes: len(r.Mission.Actions) - fails,
				Fails:     fails,
				Success:   r.Mission.Success,
			}
			pm.MissionResults = append(pm.MissionResults, r.Mission.Success)
		}
		pm.Rounds = append(pm.Rounds, pr)
	}
	if s.open != nil {
		p := s.open.clone()
		pm.Open = &p
	}
	return pm
}

// Text renders completed proposals and missions as a prompt section.
func (m PublicMemory) Text() string {
	var b strings.Builder
	wrote := false
	for _, r := range m.Rounds {
		if len(r.Proposals) == 0 {
			continue
		}
		if !wrote {
			b.WriteString("PREVIOUS ROUNDS:\n")
			wrote = true
		}
		fmt.Fprintf(&b, "\n--- Round %d ---\n", r.Number)
		for i, p := range r.Proposals {
			fmt.Fprintf(&b, "Proposal %d by %s: %s\n", i+1, p.Leader, FormatTeam(p.FinalTeam))
			for _, d := range p.Discussion {
				fmt.Fprintf(&b, "  %s: %s\n", d.Speaker, d.Text)
			}
			if !p.Forced {
				var approves, rejects []string
				for _, name := range m.Seats {
					v, ok := p.Votes[name]
					switch {
					case !ok:
					case v:
						approves = append(approves, name)
					default:
						rejects = append(rejects, name)
					}
				}
				fmt.Fprintf(&b, "  Votes: APPROVE=%s, REJECT=%s\n", FormatTeam(approves), FormatTeam(rejects))
			}
			fmt.Fprintf(&b, "  Result: %s\n", proposalOutcome(p))
			if p.Approved && r.Mission != nil {
				fmt.Fprintf(&b, "  Mission Team: %s\n", FormatTeam(r.Mission.Team))
				fmt.Fprintf(&b, "  Mission Actions: %d SUCCESS, %d FAIL\n", r.Mission.Successes, r.Mission.Fails)
				fmt.Fprintf(&b, "  Mission Result: %s\n", missionOutcome(r.Mission.Success))
			}
		}
	}
	if !wrote {
		return "No previous rounds."
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatTeam renders a name list as [A, B].
func FormatTeam(names []string) string {
	return "[" + strings.Join(names, ", ") + "]"
}

func proposalOutcome(p Proposal) string {
	switch {
	case p.Forced:
		return "APPROVED (FORCED MISSION)"
	case p.Approved:
		return "APPROVED"
	default:
		return "REJECTED"
	}
}

func missionOutcome(ok bool) string {
	if ok {
		return "SUCCESS"
	}
	return "FAIL"
}
