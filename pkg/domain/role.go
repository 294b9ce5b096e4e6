package domain

import (
	"fmt"
	"strings"
)

// Role classifies the frame a pipeline call operates on and decides which
// transformers apply to it.
type Role uint8

const (
	// RoleTraining is the frame an estimator learns from.
	RoleTraining Role = 1 << iota
	// RoleValidation is the frame used to validate during training.
	RoleValidation
	// RoleScoring is any frame scored by a fitted model.
	RoleScoring
)

// String returns the lower-case role name.
func (r Role) String() string {
	switch r {
	case RoleTraining:
		return "training"
	case RoleValidation:
		return "validation"
	case RoleScoring:
		return "scoring"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole parses a role name, case-insensitively.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "training", "train":
		return RoleTraining, nil
	case "validation", "valid":
		return RoleValidation, nil
	case "scoring", "score", "test":
		return RoleScoring, nil
	default:
		return 0, fmt.Errorf("%w: unknown frame role %q", ErrConfigInvalid, raw)
	}
}

// RoleSet is a set of roles.
type RoleSet uint8

// AllRoles contains every role.
const AllRoles = RoleSet(RoleTraining | RoleValidation | RoleScoring)

// Roles builds a set from the given roles.
func Roles(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s |= RoleSet(r)
	}
	return s
}

// Contains reports whether r is in the set.
func (s RoleSet) Contains(r Role) bool {
	return s&RoleSet(r) != 0
}

// List returns the roles in declaration order.
func (s RoleSet) List() []Role {
	var out []Role
	for _, r := range []Role{RoleTraining, RoleValidation, RoleScoring} {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) String() string {
	roles := s.List()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return "[" + strings.Join(names, ",") + "]"
}
