package project

import (
	"context"
	"fmt"

	"github.com/roach88/syncbridge/internal/ir"
)

// Role is a caller's service level. Higher values include lower ones.
type Role int

const (
	RoleNone Role = iota
	RoleGuest
	RoleDataScientist
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleDataScientist:
		return "data_scientist"
	case RoleAdmin:
		return "admin"
	default:
		return "none"
	}
}

// ParseRole parses the lowercase names produced by String.
func ParseRole(s string) (Role, error) {
	switch s {
	case "guest":
		return RoleGuest, nil
	case "data_scientist":
		return RoleDataScientist, nil
	case "admin":
		return RoleAdmin, nil
	}
	return RoleNone, fmt.Errorf("unknown role %q", s)
}

// Roles looks up the role of an identity.
type Roles interface {
	RoleFor(ctx context.Context, who ir.Identity) (Role, error)
}

// StaticRoles assigns fixed roles, falling back to Default.
type StaticRoles struct {
	Default  Role
	Assigned map[ir.Identity]Role
}

func (r StaticRoles) RoleFor(_ context.Context, who ir.Identity) (Role, error) {
	if role, ok := r.Assigned[who]; ok {
		return role, nil
	}
	return r.Default, nil
}
