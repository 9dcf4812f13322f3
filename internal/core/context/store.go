package context

import "context"

type storeKey struct{}

// WithStoreID scopes the context to a single store (branch).
func WithStoreID(ctx context.Context, storeID string) context.Context {
	return context.WithValue(ctx, storeKey{}, storeID)
}

// GetStoreID returns the store the request is scoped to, or empty string.
func GetStoreID(ctx context.Context) string {
	s, _ := ctx.Value(storeKey{}).(string)
	return s
}
