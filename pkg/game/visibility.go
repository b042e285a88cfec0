// SPDX-License-Identifier: Apache-2.0

package game

import (
	"fmt"
	"sort"
	"strings"
)

// Knowledge is the private fact set a seat may legitimately hold.
type Knowledge struct {
	Seat Seat `json:"seat"`
	// SeenEvil is filled for Merlin: every Evil seat.
	SeenEvil []string `json:"seen_evil,omitempty"`
	// PossibleMerlins is filled for Percival: Merlin and Morgana, sorted so
	// the order gives nothing away.
	PossibleMerlins []string `json:"possible_merlins,omitempty"`
	// Teammates is filled for Evil seats: the other Evil seat.
	Teammates []string `json:"teammates,omitempty"`
}

// Visibility computes what seat may know about the others. It is
// recomputed on every call.
func Visibility(seat Seat, seats []Seat) Knowledge {
	k := Knowledge{Seat: seat}
	switch {
	case seat.Role == Merlin:
		for _, s := range seats {
			if s.IsEvil() {
				k.SeenEvil = append(k.SeenEvil, s.Name)
			}
		}
	case seat.Role == Percival:
		for _, s := range seats {
			if s.Role == Merlin || s.Role == Morgana {
				k.PossibleMerlins = append(k.PossibleMerlins, s.Name)
			}
		}
		sort.Strings(k.PossibleMerlins)
	case seat.IsEvil():
		for _, s := range seats {
			if s.IsEvil() && s.Name != seat.Name {
				k.Teammates = append(k.Teammates, s.Name)
			}
		}
	}
	return k
}

// Describe renders the knowledge as a role briefing.
func (k Knowledge) Describe() string {
	switch {
	case k.Seat.Role == Merlin:
		return fmt.Sprintf("You are Merlin. You see the following Evil players: [%s]", strings.Join(k.SeenEvil, ", "))
	case k.Seat.Role == Percival:
		return fmt.Sprintf("You are Percival. You see these as possible Merlins: [%s]", strings.Join(k.PossibleMerlins, ", "))
	case k.Seat.IsEvil():
		return fmt.Sprintf("You are %s (Evil). Your evil teammates are: [%s]", k.Seat.Role, strings.Join(k.Teammates, ", "))
	default:
		return "You are a Loyal Servant of Arthur. You have no special information."
	}
}
