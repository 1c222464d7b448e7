package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mkrupp/shopcart/internal/domain"
	context_ "github.com/mkrupp/shopcart/internal/infra/context"
	"github.com/mkrupp/shopcart/internal/infra/logging"
	http_ "github.com/mkrupp/shopcart/internal/infra/transport/http"
)

type stubAuthClient map[string]domain.Identity

func (s stubAuthClient) Validate(_ context.Context, token string) (domain.Identity, error) {
	identity, ok := s[token]
	if !ok {
		return domain.Identity{}, errors.New("token is expired")
	}

	return identity, nil
}

func newGuarded(t *testing.T, role domain.Role) http.Handler {
	t.Helper()

	auth := stubAuthClient{
		"user-token":  {UserID: "u1", Roles: domain.Roles{domain.RoleUser}},
		"admin-token": {UserID: "a1", Roles: domain.Roles{domain.RoleAdmin}},
	}

	log := logging.NewNopLogger()
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := context_.IdentityFromContext(r.Context())
		http_.WriteJSON(w, http.StatusOK, identity)
	})

	return http_.Chain(final, http_.Guard(auth, role, log)...)
}

func TestGuard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		role       domain.Role
		header     string
		wantStatus int
		wantCode   string
	}{
		{"no header", domain.RoleUser, "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown token", domain.RoleUser, "Bearer nope", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"user on user route", domain.RoleUser, "Bearer user-token", http.StatusOK, ""},
		{"user on admin route", domain.RoleAdmin, "Bearer user-token", http.StatusForbidden, "FORBIDDEN"},
		{"admin on admin route", domain.RoleAdmin, "Bearer admin-token", http.StatusOK, ""},
		{"admin on user route", domain.RoleUser, "Bearer admin-token", http.StatusForbidden, "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			newGuarded(t, tt.role).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			if tt.wantCode == "" {
				return
			}

			var body http_.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.wantCode {
				t.Errorf("error code = %q, want %q", body.Error, tt.wantCode)
			}
		})
	}
}

func TestRequireRoleWithoutAuthenticate(t *testing.T) {
	t.Parallel()

	handler := http_.Chain(http.NotFoundHandler(), http_.RequireRole(domain.RoleUser, logging.NewNopLogger()))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var order []string

	gate := func(name string) http_.Gate {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := http_.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), gate("first"), gate("second"))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if fmt.Sprint(order) != "[first second handler]" {
		t.Errorf("order = %v", order)
	}
}

func TestStatusFromError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrCartAlreadyExists, http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("get: %w", domain.ErrCartNotFound), http.StatusNotFound, "NOT_FOUND"},
		{domain.ErrItemNotFound, http.StatusNotFound, "NOT_FOUND"},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "UNAUTHORIZED"},
		{domain.ErrMissingRole, http.StatusForbidden, "FORBIDDEN"},
		{domain.ErrInvalidItem, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{domain.StoreError(context.DeadlineExceeded), http.StatusGatewayTimeout, "TIMEOUT"},
		{domain.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		status, code := http_.StatusFromError(tt.err)
		if status != tt.wantStatus || code != tt.wantCode {
			t.Errorf("StatusFromError(%v) = (%d, %s), want (%d, %s)", tt.err, status, code, tt.wantStatus, tt.wantCode)
		}
	}
}

func TestWrap_TracingAndRescue(t *testing.T) {
	t.Parallel()

	handler := http_.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), logging.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(http_.TraceIDHeader, "trace-42")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if got := rec.Header().Get(http_.TraceIDHeader); got != "trace-42" {
		t.Errorf("trace header = %q, want trace-42", got)
	}
}

func TestWrap_GeneratesTraceID(t *testing.T) {
	t.Parallel()

	var seen string

	handler := http_.Wrap(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = context_.TraceIDFromContext(r.Context())
	}), logging.NewNopLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" || rec.Header().Get(http_.TraceIDHeader) != seen {
		t.Errorf("trace id %q not propagated (header %q)", seen, rec.Header().Get(http_.TraceIDHeader))
	}
}
