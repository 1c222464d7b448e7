package context_test

import (
	"context"
	"testing"

	"github.com/mkrupp/shopcart/internal/domain"
	context_ "github.com/mkrupp/shopcart/internal/infra/context"
)

func TestIdentityRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, ok := context_.IdentityFromContext(ctx); ok {
		t.Fatal("empty context reported an identity")
	}

	want := domain.Identity{UserID: "u1", Roles: domain.Roles{domain.RoleUser}}
	got, ok := context_.IdentityFromContext(context_.WithIdentity(ctx, want))

	if !ok || got.UserID != want.UserID || got.Roles.String() != want.Roles.String() {
		t.Errorf("IdentityFromContext() = %+v, %v", got, ok)
	}
}

func TestTraceIDEmptyIsAbsent(t *testing.T) {
	t.Parallel()

	if _, ok := context_.TraceIDFromContext(context_.WithTraceID(context.Background(), "")); ok {
		t.Error("empty trace id reported as present")
	}
}
