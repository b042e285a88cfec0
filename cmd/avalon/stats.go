// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/jllopis/avalon/pkg/game"
	"github.com/jllopis/avalon/pkg/history"
)

// Record counts games played and won.
type Record struct {
	Played int `json:"played"`
	Won    int `json:"won"`
}

// WinRate is Won/Played, zero when nothing was played.
func (r Record) WinRate() float64 {
	if r.Played == 0 {
		return 0
	}
	return float64(r.Won) / float64(r.Played)
}

// Stats aggregates batch results. Safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	Matches        int                     `json:"matches"`
	Aborted        int                     `json:"aborted"`
	Wins           map[string]int          `json:"wins"`
	Assassinations int                     `json:"assassinations"`
	MerlinFound    int                     `json:"merlin_found"`
	Missions       [game.RoundCount]Record `json:"missions"`
	Seats          map[string]Record       `json:"seats"`
	Roles          map[string]Record       `json:"roles"`
	Backends       map[string]Record       `json:"backends"`
}

// NewStats returns empty totals.
func NewStats() *Stats {
	return &Stats{
		Wins:     map[string]int{string(game.Good): 0, string(game.Evil): 0},
		Seats:    map[string]Record{},
		Roles:    map[string]Record{},
		Backends: map[string]Record{},
	}
}

// Add folds one finished match into the totals. Missions count Good
// successes per round number.
func (s *Stats) Add(res history.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Matches++
	s.Wins[string(res.Winner)]++
	if res.Assassination != nil {
		s.Assassinations++
		if res.Assassination.Success {
			s.MerlinFound++
		}
	}
	for i, ok := range res.MissionResults {
		if i >= len(s.Missions) {
			break
		}
		s.Missions[i].Played++
		if ok {
			s.Missions[i].Won++
		}
	}
	for _, p := range res.Players {
		won := p.Faction == res.Winner
		bump(s.Seats, p.Name, won)
		bump(s.Roles, string(p.Role), won)
		bump(s.Backends, backendKey(p), won)
	}
}

// Abort counts a match that ended without a result.
func (s *Stats) Abort() {
	s.mu.Lock()
	s.Aborted++
	s.mu.Unlock()
}

func bump(m map[string]Record, key string, won bool) {
	r := m[key]
	r.Played++
	if won {
		r.Won++
	}
	m[key] = r
}

func backendKey(p history.Player) string {
	if p.ActorConfig == "" {
		return p.ActorType
	}
	return p.ActorType + "/" + p.ActorConfig
}

// WriteText prints a summary table.
func (s *Stats) WriteText(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(w, "Matches: %d (aborted %d)\n", s.Matches, s.Aborted)
	if s.Matches == 0 {
		return
	}
	good, evil := s.Wins[string(game.Good)], s.Wins[string(game.Evil)]
	fmt.Fprintf(w, "Good: %d (%.0f%%)  Evil: %d (%.0f%%)\n",
		good, pct(good, s.Matches), evil, pct(evil, s.Matches))
	if s.Assassinations > 0 {
		fmt.Fprintf(w, "Assassinations: %d, Merlin found %d (%.0f%%)\n",
			s.Assassinations, s.MerlinFound, pct(s.MerlinFound, s.Assassinations))
	}
	fmt.Fprintln(w, "\nMission success by round:")
	for i, r := range s.Missions {
		if r.Played == 0 {
			continue
		}
		fmt.Fprintf(w, "  %d  %3d/%-3d %5.1f%%\n", i+1, r.Won, r.Played, r.WinRate()*100)
	}
	writeTable(w, "Roles", s.Roles)
	writeTable(w, "Seats", s.Seats)
	writeTable(w, "Backends", s.Backends)
}

func writeTable(w io.Writer, title string, m map[string]Record) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range keys {
		r := m[k]
		fmt.Fprintf(w, "  %-24s %3d/%-3d %5.1f%%\n", k, r.Won, r.Played, r.WinRate()*100)
	}
}

func pct(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) * 100 / float64(d)
}
