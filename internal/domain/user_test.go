package domain_test

import (
	"errors"
	"testing"

	"github.com/mkrupp/shopcart/internal/domain"
)

func TestParseRoles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      []string
		want    string
		wantErr error
	}{
		{name: "single", in: []string{"user"}, want: "user"},
		{name: "dedup and case", in: []string{"User", "admin", "USER"}, want: "user,admin"},
		{name: "skip empty", in: []string{"", " admin "}, want: "admin"},
		{name: "unknown", in: []string{"root"}, wantErr: domain.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			roles, err := domain.ParseRoles(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseRoles() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && roles.String() != tt.want {
				t.Errorf("ParseRoles() = %q, want %q", roles.String(), tt.want)
			}
		})
	}
}

func TestIdentity_Authorize(t *testing.T) {
	t.Parallel()

	user := domain.Identity{UserID: "1", Roles: domain.Roles{domain.RoleUser}}
	admin := domain.Identity{UserID: "2", Roles: domain.Roles{domain.RoleAdmin}}

	if err := user.Authorize(domain.RoleUser); err != nil {
		t.Errorf("user on user endpoint: %v", err)
	}
	if err := user.Authorize(domain.RoleAdmin); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("user on admin endpoint: got %v, want forbidden", err)
	}
	// no hierarchy
	if err := admin.Authorize(domain.RoleUser); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("admin on user endpoint: got %v, want forbidden", err)
	}
}
