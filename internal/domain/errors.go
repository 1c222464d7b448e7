package domain

import (
	"context"
	"errors"
)

// Error kinds. Every error returned by the services wraps exactly one of these,
// and the transport layer maps each kind to a distinct status.
var (
	// ErrConflict is returned on uniqueness violations and lost compare-and-set races.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned when a user, cart or line item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned for bad credentials and missing, invalid or expired tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a verified identity lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidArgument is returned for malformed input, such as a non-positive quantity.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTimeout is returned when a store call exceeds its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrUnavailable is returned when a store cannot be reached.
	ErrUnavailable = errors.New("unavailable")
)

// kindError ties a specific sentinel to its kind so errors.Is matches both.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKindError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

// StoreError tags a store failure caused by the context with ErrTimeout or
// ErrUnavailable. Other errors, and errors already tagged, are returned unchanged.
func StoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return errors.Join(ErrUnavailable, err)
	default:
		return err
	}
}
