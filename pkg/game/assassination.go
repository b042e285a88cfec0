// SPDX-License-Identifier: Apache-2.0

package game

import "github.com/jllopis/avalon/pkg/errors"

// Assassination is the sudden-death guess made once Good reaches three
// successful missions.
type Assassination struct {
	Assassin string `json:"assassin" yaml:"assassin"`
	Target   string `json:"target" yaml:"target"`
	// TargetRole is revealed after the guess.
	TargetRole Role `json:"target_role" yaml:"target_role"`
	Success    bool `json:"success" yaml:"success"`
}

// Winner returns the faction that wins by this assassination.
func (a Assassination) Winner() Faction {
	if a.Success {
		return Evil
	}
	return Good
}

// ResolveAssassination decides the match: Evil wins iff the target is Merlin.
// The assassin must hold the Assassin role and the target must be Good.
func ResolveAssassination(assassin, target Seat) (Assassination, error) {
	if assassin.Role != Assassin {
		return Assassination{}, errors.Newf(errors.CodeInvariantViolation, "seat %q is not the Assassin", assassin.Name)
	}
	if target.IsEvil() {
		return Assassination{}, errors.Newf(errors.CodeInvariantViolation, "assassination target %q is not Good", target.Name)
	}
	return Assassination{
		Assassin:   assassin.Name,
		Target:     target.Name,
		TargetRole: target.Role,
		Success:    target.Role == Merlin,
	}, nil
}
