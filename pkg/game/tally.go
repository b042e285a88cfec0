// SPDX-License-Identifier: Apache-2.0

package game

import (
	"fmt"

	"github.com/jllopis/avalon/pkg/errors"
)

// Tally folds mission results and detects the three-win threshold.
type Tally struct {
	results []bool
}

// ThresholdReached names the faction that hit three mission results first.
type ThresholdReached struct {
	Faction Faction
}

// Record appends a mission result. It reports the threshold the instant a
// faction reaches three; recording after that is an invariant violation.
func (t *Tally) Record(success bool) (ThresholdReached, bool, error) {
	if _, done := t.Threshold(); done || len(t.results) >= RoundCount {
		return ThresholdReached{}, false, errors.New(errors.CodeInvariantViolation, "mission recorded after match decided", nil).
			WithContext("results", len(t.results))
	}
	t.results = append(t.results, success)
	th, ok := t.Threshold()
	return th, ok, nil
}

// Threshold reports whether a faction has reached three results.
func (t *Tally) Threshold() (ThresholdReached, bool) {
	switch {
	case t.GoodWins() >= WinThreshold:
		return ThresholdReached{Faction: Good}, true
	case t.EvilWins() >= WinThreshold:
		return ThresholdReached{Faction: Evil}, true
	}
	return ThresholdReached{}, false
}

// GoodWins counts successful missions.
func (t *Tally) GoodWins() int {
	n := 0
	for _, r := range t.results {
		if r {
			n++
		}
	}
	return n
}

// EvilWins counts failed missions.
func (t *Tally) EvilWins() int { return len(t.results) - t.GoodWins() }

// Results returns a copy of the mission results in order.
func (t *Tally) Results() []bool {
	out := make([]bool, len(t.results))
	copy(out, t.results)
	return out
}

// Status renders the score line shown to actors.
func (t *Tally) Status(rejections int) string {
	return fmt.Sprintf("Mission Status: %d Success, %d Fail | Rejections this round: %d/%d",
		t.GoodWins(), t.EvilWins(), rejections, MaxRejections+1)
}
