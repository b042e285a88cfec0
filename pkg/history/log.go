// SPDX-License-Identifier: Apache-2.0

package history

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jllopis/avalon/pkg/game"
)

// MatchLog is the complete log of one match as written to files.
type MatchLog struct {
	MatchID       string              `json:"game_id" yaml:"game_id"`
	Timestamp     time.Time           `json:"timestamp" yaml:"timestamp"`
	Seats         []string            `json:"seats" yaml:"seats"`
	Players       []Player            `json:"players" yaml:"players"`
	Rounds        []Round             `json:"rounds" yaml:"rounds"`
	Assassination *game.Assassination `json:"assassination" yaml:"assassination"`
	Result        *Result             `json:"final_result" yaml:"final_result"`
}

// BuildLog reassembles a match log from its records.
func BuildLog(records []Record) MatchLog {
	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	var log MatchLog
	round := func(n int) *Round {
		for i := range log.Rounds {
			if log.Rounds[i].Number == n {
				return &log.Rounds[i]
			}
		}
		log.Rounds = append(log.Rounds, Round{Number: n})
		return &log.Rounds[len(log.Rounds)-1]
	}
	for _, rec := range sorted {
		if log.MatchID == "" {
			log.MatchID = rec.MatchID
			log.Timestamp = rec.At
		}
		switch rec.Kind {
		case RecordMatchStarted:
			log.Seats = cloneStrings(rec.Seats)
			log.Timestamp = rec.At
		case RecordProposal:
			if rec.Proposal != nil {
				r := round(rec.Round)
				r.Proposals = append(r.Proposals, rec.Proposal.clone())
			}
		case RecordRound:
			r := round(rec.Round)
			r.TeamSize = rec.TeamSize
			if rec.Mission != nil {
				m := rec.Mission.clone()
				r.Mission = &m
			}
		case RecordAssassination:
			if rec.Assassination == nil {
				continue
			}
			a := *rec.Assassination
			log.Assassination = &a
		case RecordResult:
			if rec.Result == nil {
				continue
			}
			res := *rec.Result
			log.Result = &res
			log.Players = append([]Player(nil), res.Players...)
		}
	}
	for i := range log.Rounds {
		if log.Rounds[i].TeamSize == 0 {
			log.Rounds[i].TeamSize = game.TeamSize(log.Rounds[i].Number)
		}
	}
	return log
}

const rule = "--------------------------------------------------------------------------------"
const banner = "================================================================================"

// WriteText renders a match log in the human-readable format.
func WriteText(w io.Writer, log MatchLog) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nAVALON GAME LOG\n%s\n\n", banner, banner)
	fmt.Fprintf(&b, "Game ID: %s\n", log.MatchID)
	fmt.Fprintf(&b, "Timestamp: %s\n\n", log.Timestamp.Format(time.RFC3339))

	fmt.Fprintf(&b, "%s\nPLAYERS\n%s\n", rule, rule)
	for _, p := range log.Players {
		fmt.Fprintf(&b, "%s: %s (%s) - AI: %s (%s)\n", p.Name, p.Role, p.Faction, p.ActorType, p.ActorConfig)
	}
	b.WriteString("\n")

	order := log.Seats
	for _, r := range log.Rounds {
		fmt.Fprintf(&b, "%s\nROUND %d (Team size: %d)\n%s\n", rule, r.Number, r.TeamSize, rule)
		for _, p := range r.Proposals {
			fmt.Fprintf(&b, "\nProposal by %s:\n", p.Leader)
			fmt.Fprintf(&b, "  Initial team: %s\n", FormatTeam(p.InitialTeam))
			if len(p.Discussion) > 0 {
				b.WriteString("  Discussion:\n")
				for _, d := range p.Discussion {
					fmt.Fprintf(&b, "    %s: %s\n", d.Speaker, d.Text)
				}
			}
			fmt.Fprintf(&b, "  Final team: %s\n", FormatTeam(p.FinalTeam))
			if !p.Forced {
				b.WriteString("  Votes:\n")
				for _, name := range orderedKeys(p.Votes, order) {
					fmt.Fprintf(&b, "    %s: %s\n", name, voteWord(p.Votes[name]))
				}
			}
			fmt.Fprintf(&b, "  Result: %s\n", proposalOutcome(p))
		}
		if r.Mission != nil {
			b.WriteString("\nMission Execution:\n")
			for _, name := range orderedKeys(r.Mission.Actions, r.Mission.Team) {
				fmt.Fprintf(&b, "  %s: %s\n", name, missionOutcome(r.Mission.Actions[name]))
			}
			fmt.Fprintf(&b, "  Result: %s\n", missionOutcome(r.Mission.Success))
		}
		b.WriteString("\n")
	}

	if a := log.Assassination; a != nil {
		fmt.Fprintf(&b, "%s\nASSASSINATION PHASE\n%s\n", rule, rule)
		fmt.Fprintf(&b, "Assassin: %s\nTarget: %s\nTarget was Merlin: %t\nResult: %s WINS\n\n",
			a.Assassin, a.Target, a.Success, strings.ToUpper(string(a.Winner())))
	}

	if res := log.Result; res != nil {
		fmt.Fprintf(&b, "%s\nFINAL RESULT\n%s\n", banner, banner)
		fmt.Fprintf(&b, "Winner: %s\n", strings.ToUpper(string(res.Winner)))
		words := make([]string, len(res.MissionResults))
		for i, ok := range res.MissionResults {
			words[i] = missionOutcome(ok)
		}
		fmt.Fprintf(&b, "Mission Results: [%s]\n", strings.Join(words, ", "))
		fmt.Fprintf(&b, "Good Wins: %d | Evil Wins: %d\n", res.GoodWins, res.EvilWins)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// orderedKeys lists map keys following order, then any leftovers sorted.
func orderedKeys(m map[string]bool, order []string) []string {
	out := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, name := range order {
		if _, ok := m[name]; ok && !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range m {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func voteWord(v bool) string {
	if v {
		return "APPROVE"
	}
	return "REJECT"
}
