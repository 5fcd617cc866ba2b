package domain

import (
	"fmt"
	"strings"
)

// Role is the access level granted by the upstream identity provider.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleEmitter Role = "EMITTER"
	RoleViewer  Role = "VIEWER"
)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleEmitter, RoleViewer:
		return true
	}
	return false
}

func ParseRoleFromString(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("%w: invalid role %q", ErrValidation, s)
	}
	return r, nil
}

// Actor is the caller identity threaded explicitly through every command.
// Provenance fields are best-effort and used for audit only.
type Actor struct {
	ID        string
	Role      Role
	OriginIP  string
	UserAgent string
}

// SystemActor identifies the automatic emission worker in audit entries.
func SystemActor() Actor {
	return Actor{ID: "auto-emitter", Role: RoleEmitter}
}

func (a Actor) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: actor id is required", ErrValidation)
	}
	if !a.Role.IsValid() {
		return fmt.Errorf("%w: invalid actor role %q", ErrValidation, a.Role)
	}
	return nil
}

// CanEmit reports whether the actor may emit, deliver, sweep or reset.
func (a Actor) CanEmit() bool {
	return a.Role == RoleAdmin || a.Role == RoleEmitter
}
