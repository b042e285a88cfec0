// SPDX-License-Identifier: Apache-2.0

package game

import (
	"math/rand"
	"strings"

	"github.com/jllopis/avalon/pkg/errors"
)

// AssignRoles deals the role multiset to the named seats as a uniformly
// random bijection. Seat order follows names.
func AssignRoles(names []string, rng *rand.Rand) ([]Seat, error) {
	if len(names) != SeatCount {
		return nil, errors.Newf(errors.CodeConfiguration, "need %d seats, got %d", SeatCount, len(names)).
			WithContext("seats", len(names))
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return nil, errors.New(errors.CodeConfiguration, "seat name is empty", nil)
		}
		if seen[n] {
			return nil, errors.Newf(errors.CodeConfiguration, "duplicate seat name %q", n)
		}
		seen[n] = true
	}
	if rng == nil {
		return nil, errors.New(errors.CodeConfiguration, "random source is required", nil)
	}

	roles := RoleSet()
	rng.Shuffle(len(roles), func(i, j int) { roles[i], roles[j] = roles[j], roles[i] })

	seats := make([]Seat, SeatCount)
	for i, n := range names {
		seats[i] = Seat{Index: i, Name: n, Role: roles[i]}
	}
	if err := ValidateRoles(seats); err != nil {
		return nil, err
	}
	return seats, nil
}

// ValidateRoles checks that seats carry exactly the six-seat multiset.
func ValidateRoles(seats []Seat) error {
	if len(seats) != SeatCount {
		return errors.Newf(errors.CodeInvariantViolation, "expected %d seats, got %d", SeatCount, len(seats))
	}
	want := make(map[Role]int)
	for _, r := range roleSet {
		want[r]++
	}
	for i, s := range seats {
		if s.Index != i {
			return errors.Newf(errors.CodeInvariantViolation, "seat %q has index %d, want %d", s.Name, s.Index, i)
		}
		want[s.Role]--
	}
	for r, n := range want {
		if n != 0 {
			return errors.Newf(errors.CodeInvariantViolation, "role %s count off by %d", r, -n).
				WithContext("role", string(r))
		}
	}
	return nil
}
