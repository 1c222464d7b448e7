package domain

import (
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrUserAlreadyExists is returned when the username or email is already taken.
	ErrUserAlreadyExists = newKindError(ErrConflict, "user already exists")
	// ErrUserNotFound is returned when looking up a non-existent user.
	ErrUserNotFound = newKindError(ErrNotFound, "user not found")
	// ErrInvalidCredentials is returned when the username/password combination is incorrect.
	ErrInvalidCredentials = newKindError(ErrUnauthorized, "invalid credentials")
	// ErrUnknownRole is returned when parsing a role outside the closed set.
	ErrUnknownRole = newKindError(ErrInvalidArgument, "unknown role")
)

// Role is an access-level tag checked per endpoint.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates s against the closed set of roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Roles is a set of roles kept in a stable, de-duplicated order.
type Roles []Role

// ParseRoles parses a list of role names. Empty entries are skipped.
func ParseRoles(names []string) (Roles, error) {
	var roles Roles

	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}

		role, err := ParseRole(name)
		if err != nil {
			return nil, err
		}

		roles = roles.With(role)
	}

	return roles, nil
}

// Has reports exact membership. There is no hierarchy: admin does not imply user.
func (rs Roles) Has(role Role) bool {
	return slices.Contains(rs, role)
}

// With returns the set with role added.
func (rs Roles) With(role Role) Roles {
	if rs.Has(role) {
		return rs
	}

	return append(slices.Clone(rs), role)
}

// Strings returns the role names.
func (rs Roles) Strings() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}

	return out
}

// String joins the roles with commas, the form they are persisted in.
func (rs Roles) String() string {
	return strings.Join(rs.Strings(), ",")
}

// User represents a registered account.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Roles        Roles  `json:"roles"`
	CreatedAt    int64  `json:"createdAt"` // Unix timestamp of account creation
}
