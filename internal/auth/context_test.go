// ABOUTME: Unit tests for the principal context helpers.
// ABOUTME: Tests IsAdmin, HasPermission, and context propagation.

package auth

import (
	"context"
	"testing"
)

func TestPrincipal_IsAdmin(t *testing.T) {
	tests := []struct {
		name string
		role string
		want bool
	}{
		{name: "admin role", role: "admin", want: true},
		{name: "operator role", role: "operator", want: false},
		{name: "caller role", role: "caller", want: false},
		{name: "empty role", role: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Principal{ID: "test-principal", Role: tt.role}
			if p.IsAdmin() != tt.want {
				t.Errorf("IsAdmin() = %v, want %v for role %q", p.IsAdmin(), tt.want, tt.role)
			}
		})
	}
}

func TestPrincipal_HasPermission(t *testing.T) {
	p := &Principal{
		ID:          "test-principal",
		Role:        "caller",
		Permissions: []string{"calls.place", "credits.read"},
	}

	tests := []struct {
		perm string
		want bool
	}{
		{"calls.place", true},
		{"credits.read", true},
		{"credits.grant", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.perm, func(t *testing.T) {
			if p.HasPermission(tt.perm) != tt.want {
				t.Errorf("HasPermission(%q) = %v, want %v", tt.perm, !tt.want, tt.want)
			}
		})
	}
}

func TestFromContext_Present(t *testing.T) {
	expected := &Principal{
		ID:   "test-id",
		Role: "admin",
	}

	ctx := WithAuth(context.Background(), expected)
	got := FromContext(ctx)

	if got == nil {
		t.Fatal("FromContext() = nil, want non-nil")
	}

	if got.ID != expected.ID {
		t.Errorf("ID = %q, want %q", got.ID, expected.ID)
	}

	if got.Role != expected.Role {
		t.Errorf("Role = %q, want %q", got.Role, expected.Role)
	}
}

func TestFromContext_Missing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}
}

func TestMustFromContext_Present(t *testing.T) {
	expected := &Principal{ID: "test-id", Role: "admin"}
	ctx := WithAuth(context.Background(), expected)

	got := MustFromContext(ctx)

	if got.ID != expected.ID {
		t.Errorf("ID = %q, want %q", got.ID, expected.ID)
	}
}

func TestMustFromContext_Missing(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustFromContext() did not panic when principal missing")
		}
	}()

	MustFromContext(context.Background())
}
