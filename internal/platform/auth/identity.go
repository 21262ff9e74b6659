// Package auth verifies Firebase ID tokens and exposes the authenticated
// identity to handlers through the request context.
package auth

import (
	"context"
	"strings"
)

// Role constants checked at authorisation boundaries. They mirror the role
// custom claim set on Firebase accounts.
const (
	RoleCustomer      = "customer"
	RoleSuperAdmin    = "super_admin"
	RolePharmacyAdmin = "pharmacy_admin"
)

// AdminRoles lists every role allowed on the admin and financial surfaces.
var AdminRoles = []string{RoleSuperAdmin, RolePharmacyAdmin}

// Identity captures the authenticated principal extracted from a Firebase ID
// token.
type Identity struct {
	UID        string
	Email      string
	Role       string
	PharmacyID string
}

// HasRole reports whether the identity carries the requested role.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(role), i.Role)
}

// HasAnyRole reports whether the identity carries any of the provided roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity may use admin surfaces.
func (i *Identity) IsAdmin() bool {
	return i.HasAnyRole(AdminRoles...)
}

type contextKey struct{}

// WithIdentity stores the identity on the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext retrieves the identity stored by the middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
