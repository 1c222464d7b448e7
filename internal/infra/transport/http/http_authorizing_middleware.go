package http

import (
	"net/http"

	"github.com/mkrupp/shopcart/internal/domain"
	context_ "github.com/mkrupp/shopcart/internal/infra/context"
	"github.com/mkrupp/shopcart/internal/infra/logging"
	"github.com/mkrupp/shopcart/internal/svc/authsvc/authclient"
)

// Gate is a step of the access-control pipeline. A gate either rejects the
// request and writes the response, or passes it on unchanged or with an enriched context.
type Gate func(next http.Handler) http.Handler

// Chain wraps handler so that gates run in the order given, before the handler.
func Chain(handler http.Handler, gates ...Gate) http.Handler {
	for i := len(gates) - 1; i >= 0; i-- {
		handler = gates[i](handler)
	}

	return handler
}

// Authenticate is the first gate stage. It validates the Bearer token from the
// Authorization header and stores the resulting identity in the request context.
// Every rejection is answered with 401 regardless of the reason.
func Authenticate(authClient authclient.AuthClient, log logging.Logger) Gate {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := authclient.BearerToken(r.Header.Get(authclient.AuthorizationHeader))

			identity, err := authclient.Authenticate(r.Context(), authClient, token)
			if err != nil {
				log.WarnContext(r.Context(), "authentication rejected", "error", err)
				WriteError(w, err)

				return
			}

			next.ServeHTTP(w, r.WithContext(context_.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole is the second gate stage. It must be chained after Authenticate;
// without an identity in the context the request is rejected as unauthenticated.
func RequireRole(role domain.Role, log logging.Logger) Gate {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := context_.IdentityFromContext(r.Context())
			if !ok {
				log.ErrorContext(r.Context(), "role check without identity", "role", role)
				WriteError(w, domain.ErrNoAuthToken)

				return
			}

			if err := identity.Authorize(role); err != nil {
				log.WarnContext(r.Context(), "authorization rejected", "error", err)
				WriteError(w, err)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Guard is the two-stage gate for one required role.
func Guard(authClient authclient.AuthClient, role domain.Role, log logging.Logger) []Gate {
	return []Gate{Authenticate(authClient, log), RequireRole(role, log)}
}
