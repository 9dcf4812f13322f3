// Package context provides request-scoped values extraction.
package context

import (
	"context"
	"slices"
)

// RoleAdmin may override counters and provision stores.
const RoleAdmin = "admin"

// UserContext contains the authenticated user as asserted by the backend token.
type UserContext struct {
	UserID    string
	Email     string
	Roles     []string
	StoreIDs  []string // Stores the user may operate on
	SessionID string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// HasRole checks if user has specific role.
func HasRole(ctx context.Context, role string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

// AllStores in StoreIDs grants access to every store.
const AllStores = "*"

// HasStoreAccess checks if user may act on the store.
func (u *UserContext) HasStoreAccess(storeID string) bool {
	return slices.Contains(u.StoreIDs, AllStores) || slices.Contains(u.StoreIDs, storeID)
}
