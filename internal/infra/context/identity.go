package context

import (
	"context"

	"github.com/mkrupp/shopcart/internal/domain"
)

const contextKeyIdentity = contextKey("identity")

// IdentityFromContext extracts the verified identity from the context.
// Returns false if the request did not pass the authentication gate.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(contextKeyIdentity).(domain.Identity)

	return identity, ok
}

// WithIdentity stores the verified identity for the rest of the request.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}
