// SPDX-License-Identifier: Apache-2.0

package game

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/jllopis/avalon/pkg/errors"
)

var names = []string{"Alice", "Bob", "Charlie", "Diana", "Eve", "Frank"}

func fixedSeats() []Seat {
	roles := []Role{Merlin, Percival, LoyalServant, LoyalServant, Morgana, Assassin}
	seats := make([]Seat, len(names))
	for i, n := range names {
		seats[i] = Seat{Index: i, Name: n, Role: roles[i]}
	}
	return seats
}

func TestAssignRolesMultiset(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		seats, err := AssignRoles(names, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		counts := map[Role]int{}
		for i, s := range seats {
			if s.Name != names[i] || s.Index != i {
				t.Fatalf("seed %d: seat order changed: %+v", seed, s)
			}
			counts[s.Role]++
		}
		want := map[Role]int{Merlin: 1, Percival: 1, LoyalServant: 2, Morgana: 1, Assassin: 1}
		if !reflect.DeepEqual(counts, want) {
			t.Fatalf("seed %d: role counts %v", seed, counts)
		}
	}
}

func TestAssignRolesIsRandom(t *testing.T) {
	merlinAt := map[int]bool{}
	for seed := int64(0); seed < 100; seed++ {
		seats, _ := AssignRoles(names, rand.New(rand.NewSource(seed)))
		m, _ := SeatWithRole(seats, Merlin)
		merlinAt[m.Index] = true
	}
	if len(merlinAt) != SeatCount {
		t.Fatalf("expected Merlin at every seat across seeds, got %v", merlinAt)
	}
}

func TestAssignRolesConfigurationErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		name  string
		input []string
	}{
		{"too few", names[:5]},
		{"too many", append(append([]string{}, names...), "Grace")},
		{"duplicate", []string{"A", "B", "C", "D", "E", "A"}},
		{"empty name", []string{"A", "B", "C", "D", "E", " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AssignRoles(tt.input, rng)
			if !errors.IsCode(err, errors.CodeConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if !errors.IsFatal(err) {
				t.Fatalf("configuration errors must be fatal")
			}
		})
	}
}

func TestValidateRoles(t *testing.T) {
	seats := fixedSeats()
	if err := ValidateRoles(seats); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seats[2].Role = Merlin
	if err := ValidateRoles(seats); !errors.IsCode(err, errors.CodeInvariantViolation) {
		t.Fatalf("expected invariant violation for duplicate Merlin, got %v", err)
	}
}

func TestVisibility(t *testing.T) {
	seats := fixedSeats()
	tests := []struct {
		seat     int
		evil     []string
		possible []string
		mates    []string
		describe string
	}{
		{0, []string{"Eve", "Frank"}, nil, nil, "You are Merlin. You see the following Evil players: [Eve, Frank]"},
		{1, nil, []string{"Alice", "Eve"}, nil, "You are Percival. You see these as possible Merlins: [Alice, Eve]"},
		{2, nil, nil, nil, "You are a Loyal Servant of Arthur. You have no special information."},
		{4, nil, nil, []string{"Frank"}, "You are Morgana (Evil). Your evil teammates are: [Frank]"},
		{5, nil, nil, []string{"Eve"}, "You are Assassin (Evil). Your evil teammates are: [Eve]"},
	}
	for _, tt := range tests {
		k := Visibility(seats[tt.seat], seats)
		if !reflect.DeepEqual(k.SeenEvil, tt.evil) || !reflect.DeepEqual(k.PossibleMerlins, tt.possible) ||
			!reflect.DeepEqual(k.Teammates, tt.mates) {
			t.Errorf("%s: unexpected knowledge %+v", seats[tt.seat].Role, k)
		}
		if got := k.Describe(); got != tt.describe {
			t.Errorf("%s: Describe() = %q", seats[tt.seat].Role, got)
		}
	}
}

func TestPercivalPairIsUndifferentiated(t *testing.T) {
	seats := fixedSeats()
	// Swap Merlin and Morgana: Percival must see the same pair.
	seats[0].Role, seats[4].Role = Morgana, Merlin
	a := Visibility(seats[1], seats)
	b := Visibility(fixedSeats()[1], fixedSeats())
	if !reflect.DeepEqual(a.PossibleMerlins, b.PossibleMerlins) {
		t.Fatalf("Percival can tell Merlin from Morgana: %v vs %v", a.PossibleMerlins, b.PossibleMerlins)
	}
}

func TestTeamSize(t *testing.T) {
	want := []int{2, 3, 4, 3, 4}
	for i, n := range want {
		if got := TeamSize(i + 1); got != n {
			t.Errorf("round %d: got %d want %d", i+1, got, n)
		}
	}
	if TeamSize(0) != 0 || TeamSize(6) != 0 {
		t.Errorf("out of range rounds must report 0")
	}
}

func TestTally(t *testing.T) {
	tests := []struct {
		name    string
		results []bool
		reached bool
		faction Faction
	}{
		{"good three", []bool{true, false, true, true}, true, Good},
		{"evil three", []bool{false, true, false, false}, true, Evil},
		{"undecided", []bool{true, false, true, false}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tally Tally
			var th ThresholdReached
			var ok bool
			for i, r := range tt.results {
				var err error
				th, ok, err = tally.Record(r)
				if err != nil {
					t.Fatalf("record: %v", err)
				}
				if ok && i != len(tt.results)-1 {
					t.Fatalf("threshold reached early at %d", i)
				}
			}
			if ok != tt.reached || th.Faction != tt.faction {
				t.Fatalf("got %v %v", th, ok)
			}
		})
	}
}

func TestTallyRejectsRecordAfterDecision(t *testing.T) {
	var tally Tally
	for i := 0; i < 3; i++ {
		_, _, _ = tally.Record(true)
	}
	if _, _, err := tally.Record(false); !errors.IsCode(err, errors.CodeInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if len(tally.Results()) != 3 {
		t.Fatalf("results must stay at 3")
	}
}

func TestTallyStatus(t *testing.T) {
	var tally Tally
	_, _, _ = tally.Record(true)
	_, _, _ = tally.Record(false)
	_, _, _ = tally.Record(true)
	want := "Mission Status: 2 Success, 1 Fail | Rejections this round: 2/5"
	if got := tally.Status(2); got != want {
		t.Fatalf("got %q", got)
	}
}

func TestResolveAssassination(t *testing.T) {
	seats := fixedSeats()
	assassin := seats[5]

	hit, err := ResolveAssassination(assassin, seats[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit.Success || hit.Winner() != Evil || hit.TargetRole != Merlin {
		t.Fatalf("killing Merlin must hand Evil the win: %+v", hit)
	}

	miss, _ := ResolveAssassination(assassin, seats[1])
	if miss.Success || miss.Winner() != Good {
		t.Fatalf("missing Merlin must hand Good the win: %+v", miss)
	}

	if _, err := ResolveAssassination(assassin, seats[4]); !errors.IsCode(err, errors.CodeInvariantViolation) {
		t.Fatalf("targeting an Evil seat must fail, got %v", err)
	}
	if _, err := ResolveAssassination(seats[4], seats[0]); !errors.IsCode(err, errors.CodeInvariantViolation) {
		t.Fatalf("only the Assassin may assassinate, got %v", err)
	}
}
