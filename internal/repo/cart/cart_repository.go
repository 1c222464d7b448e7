package cart

import (
	"context"

	"github.com/mkrupp/shopcart/internal/domain"
)

// Repository defines the interface for cart persistence.
// A user has at most one cart, keyed by user id.
type Repository interface {
	// Lock acquires the exclusive per-user lock that serializes
	// read-modify-write sequences on one cart. The returned func releases it.
	Lock(ctx context.Context, userID string) (func(), error)

	// Create stores a new cart at version 1 and returns it with its timestamps set.
	// Returns domain.ErrCartAlreadyExists if the user already has a cart.
	Create(ctx context.Context, cart domain.Cart) (domain.Cart, error)

	// Get loads the user's cart.
	// Returns domain.ErrCartNotFound if there is none.
	Get(ctx context.Context, userID string) (domain.Cart, error)

	// Save replaces the stored cart if its version still equals cart.Version,
	// and returns the stored cart with the version incremented.
	// Returns domain.ErrCartVersionMismatch if the cart changed since it was loaded
	// and domain.ErrCartNotFound if it was deleted.
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)

	// Delete removes the user's cart and returns what was stored.
	// Returns domain.ErrCartNotFound if there is none.
	Delete(ctx context.Context, userID string) (domain.Cart, error)

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
type RepositoryFactory func(ctx context.Context) (Repository, error)
