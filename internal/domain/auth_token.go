package domain

import "fmt"

var (
	// ErrNoAuthToken is returned when an authentication token is required but not provided.
	ErrNoAuthToken = newKindError(ErrUnauthorized, "no auth token")
	// ErrInvalidAuthToken is returned when a token is malformed, its signature is invalid or it has expired.
	ErrInvalidAuthToken = newKindError(ErrUnauthorized, "invalid auth token")
	// ErrMissingRole is returned when the authenticated identity lacks the required role.
	ErrMissingRole = newKindError(ErrForbidden, "missing role")
)

// Identity is the verified content of a session token.
type Identity struct {
	UserID string `json:"userId"`
	Roles  Roles  `json:"roles"`
}

// Authorize checks that the identity holds the required role.
func (id Identity) Authorize(required Role) error {
	if !id.Roles.Has(required) {
		return fmt.Errorf("%w: %s", ErrMissingRole, required)
	}

	return nil
}

// AuthTokenResponse represents a response containing an authentication token.
type AuthTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}
