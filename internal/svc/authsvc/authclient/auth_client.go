package authclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mkrupp/shopcart/internal/domain"
)

// AuthClient verifies session tokens.
type AuthClient interface {
	// Validate checks the token's signature and expiry and returns the identity it carries.
	// Any rejection wraps domain.ErrUnauthorized.
	Validate(ctx context.Context, token string) (domain.Identity, error)
}

// BearerToken extracts the token from an Authorization header value.
// A bare token without the scheme is accepted as well.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)

	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}

	return header
}

// Authenticate is the first stage of the access gate. Missing, malformed, expired and
// badly signed tokens all collapse into domain.ErrInvalidAuthToken; the cause is
// joined for logging but never distinguishes the result kind. Store or network
// failures of the verifier keep their own kind.
func Authenticate(ctx context.Context, client AuthClient, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, domain.ErrNoAuthToken
	}

	identity, err := client.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) || errors.Is(err, domain.ErrTimeout) {
			return domain.Identity{}, fmt.Errorf("validate: %w", err)
		}

		return domain.Identity{}, errors.Join(domain.ErrInvalidAuthToken, err)
	}

	return identity, nil
}

// Evaluate runs both stages of the access gate in order: authenticate the token,
// then require exact membership of the role. The second stage only runs when the
// first succeeds.
func Evaluate(ctx context.Context, client AuthClient, token string, required domain.Role) (domain.Identity, error) {
	identity, err := Authenticate(ctx, client, token)
	if err != nil {
		return domain.Identity{}, err
	}

	if err := identity.Authorize(required); err != nil {
		return domain.Identity{}, err
	}

	return identity, nil
}
