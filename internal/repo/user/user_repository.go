package user

import (
	"context"

	"github.com/mkrupp/shopcart/internal/domain"
)

// Repository defines the interface for user data persistence.
type Repository interface {
	// CreateUser adds a new user. The ID is assigned by the repository and set on the returned user.
	// Returns domain.ErrUserAlreadyExists if the username or email is already taken.
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)

	// GetUserByUsername retrieves a user by their username.
	// Returns domain.ErrUserNotFound if there is no such user.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
type RepositoryFactory func(ctx context.Context) (Repository, error)
