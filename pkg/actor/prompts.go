// SPDX-License-Identifier: Apache-2.0

package actor

import (
	"fmt"
	"strings"

	"github.com/jllopis/avalon/pkg/history"
)

const systemPrompt = `You are a player in a six-seat game of The Resistance: Avalon.
Good (Merlin, Percival, two Loyal Servants) wins with three successful missions,
Evil (Morgana, Assassin) wins with three failed missions or by assassinating
Merlin afterwards. Never state your role or anyone else's role outright.
Think as long as you need, but end with the answer in the exact format asked.`

// Prompt renders the user message for a request.
func Prompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s\n\n", req.Seat, req.Knowledge.Describe())
	b.WriteString(req.Public.Text())
	b.WriteString("\n\n")
	if c := req.Context; c.Status != "" {
		fmt.Fprintf(&b, "Round %d. %s\n", c.Round, c.Status)
	}
	if len(req.Context.Players) > 0 {
		fmt.Fprintf(&b, "Players: %s\n", history.FormatTeam(req.Context.Players))
	}
	b.WriteString("\n")
	b.WriteString(taskFor(req))
	return b.String()
}

func taskFor(req Request) string {
	c := req.Context
	switch req.Kind {
	case KindPropose:
		return fmt.Sprintf(`You are the leader. Select exactly %d players for this mission.
Weigh past mission results, who sat on failed teams and what each player said.
Output ONLY a comma-separated list of player names, for example: Alice,Bob

Your selection:`, c.TeamSize)

	case KindFinalize:
		return fmt.Sprintf(`You initially proposed: %s
Discussion on your proposal:
%s
Keep your team or change it in light of the discussion. You must select exactly %d players.
Output ONLY a comma-separated list of player names for your FINAL team.

Your final team:`, history.FormatTeam(c.Team), transcript(c.Discussion), c.TeamSize)

	case KindDiscuss:
		var lead string
		switch c.Tag {
		case history.TagOpen:
			lead = "As the leader, open the discussion by explaining your choice."
		case history.TagClose:
			lead = "As the leader, close the discussion by answering the concerns raised."
		default:
			lead = "Give your view on this proposal."
		}
		return fmt.Sprintf(`Leader %s has proposed this team: %s
Discussion so far:
%s
%s Point to concrete evidence from earlier rounds. Do not reveal roles.
Answer with one or two sentences.

Your comment:`, c.Leader, history.FormatTeam(c.Team), transcript(c.Discussion), lead)

	case KindVote:
		return fmt.Sprintf(`Proposed team: %s
Vote to APPROVE or REJECT this team. A team needs 4 of 6 approvals.
Output ONLY one word: APPROVE or REJECT.

Your vote:`, history.FormatTeam(c.Team))

	case KindMissionAction:
		return `You are on the mission. Good players must play SUCCESS; Evil players may play SUCCESS or FAIL.
A single FAIL sinks the mission. Consider how exposed a failure would leave you.
Output ONLY one word: SUCCESS or FAIL.

Your action:`

	case KindAssassinate:
		return fmt.Sprintf(`Good has completed three missions. As the Assassin you have one guess:
if you name Merlin, Evil wins. Merlin knew the Evil players all game and may have
steered teams away from them without being obvious. Percival also looked informed.
Good players: %s
Output ONLY the name of one player.

Your assassination target:`, history.FormatTeam(c.Options))
	}
	return "Answer with one of: " + strings.Join(c.Options, ", ")
}

func transcript(entries []history.DiscussionEntry) string {
	if len(entries) == 0 {
		return "  (No previous comments)"
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("  %s: %s", e.Speaker, e.Text)
	}
	return strings.Join(lines, "\n")
}
