// ABOUTME: Authenticated principal identity carried through request contexts.
// ABOUTME: Provides WithAuth/FromContext for propagating identity to handlers.

package auth

import (
	"context"
)

// Principal holds the authenticated identity extracted from a request.
// Populated by the transport middleware and read back by capability handlers.
type Principal struct {
	ID          string   // identifier of the authenticated principal
	Role        string   // "admin" | "operator" | "caller"
	Permissions []string // fine-grained grants beyond the role
}

// HasPermission returns true if the principal carries the named permission.
func (p *Principal) HasPermission(perm string) bool {
	for _, have := range p.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}

// IsAdmin returns true if the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p.Role == "admin"
}

// principalKey is the key type for storing a Principal in context.Context.
type principalKey struct{}

// WithAuth returns a new context with the principal attached.
func WithAuth(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from the context, returning nil if not present.
func FromContext(ctx context.Context) *Principal {
	val := ctx.Value(principalKey{})
	if val == nil {
		return nil
	}
	p, ok := val.(*Principal)
	if !ok {
		return nil
	}
	return p
}

// MustFromContext retrieves the principal from the context, panicking if not present.
func MustFromContext(ctx context.Context) *Principal {
	p := FromContext(ctx)
	if p == nil {
		panic("auth: principal not found in context")
	}
	return p
}
