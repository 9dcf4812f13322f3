// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces, not on pgx.
package tx

import (
	"context"
)

// Manager runs a unit of work atomically.
//
// If fn returns an error the transaction is rolled back, otherwise committed.
// Nested calls reuse the transaction already carried by ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager is a Manager that can also run fn in a read-only transaction.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
