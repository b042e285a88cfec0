// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

// Package game holds the rules of the six-seat Avalon variant: the role
// multiset, what each role may know, the mission schedule, the outcome tally
// and the assassination rule. Everything here is pure and free of I/O.
package game

// Role is a hidden character assigned to a seat.
type Role string

const (
	Merlin       Role = "Merlin"
	Percival     Role = "Percival"
	LoyalServant Role = "Loyal Servant"
	Morgana      Role = "Morgana"
	Assassin     Role = "Assassin"
)

// Faction is the side a role plays for.
type Faction string

const (
	Good Faction = "Good"
	Evil Faction = "Evil"
)

// Faction derives the side from the role.
func (r Role) Faction() Faction {
	if r == Morgana || r == Assassin {
		return Evil
	}
	return Good
}

// Rules of the six-seat variant.
const (
	SeatCount       = 6
	RoundCount      = 5
	WinThreshold    = 3
	MaxRejections   = 4 // the attempt after the fourth rejection is forced
	ApprovalsNeeded = 4
)

// roleSet is the fixed multiset dealt to six seats.
var roleSet = [SeatCount]Role{Merlin, Percival, LoyalServant, LoyalServant, Morgana, Assassin}

// teamSizes is the mission schedule indexed by round-1.
var teamSizes = [RoundCount]int{2, 3, 4, 3, 4}

// RoleSet returns a copy of the role multiset.
func RoleSet() []Role {
	out := make([]Role, len(roleSet))
	copy(out, roleSet[:])
	return out
}

// TeamSize returns the mission size of a 1-based round, or 0 if the round
// is out of range.
func TeamSize(round int) int {
	if round < 1 || round > RoundCount {
		return 0
	}
	return teamSizes[round-1]
}

// Seat is one of the six player slots with its hidden role.
type Seat struct {
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name" yaml:"name"`
	Role  Role   `json:"role" yaml:"role"`
}

// Faction returns the seat's side.
func (s Seat) Faction() Faction { return s.Role.Faction() }

// IsEvil reports whether the seat plays for Evil.
func (s Seat) IsEvil() bool { return s.Role.Faction() == Evil }

// Names returns the seat names in seat order.
func Names(seats []Seat) []string {
	out := make([]string, len(seats))
	for i, s := range seats {
		out[i] = s.Name
	}
	return out
}

// SeatByName finds a seat by exact name.
func SeatByName(seats []Seat, name string) (Seat, bool) {
	for _, s := range seats {
		if s.Name == name {
			return s, true
		}
	}
	return Seat{}, false
}

// SeatsOf returns the seats of a faction in seat order.
func SeatsOf(seats []Seat, f Faction) []Seat {
	var out []Seat
	for _, s := range seats {
		if s.Faction() == f {
			out = append(out, s)
		}
	}
	return out
}

// SeatWithRole returns the first seat holding the role.
func SeatWithRole(seats []Seat, r Role) (Seat, bool) {
	for _, s := range seats {
		if s.Role == r {
			return s, true
		}
	}
	return Seat{}, false
}
