// Package sequence implements the invoice sequence allocator.
package sequence

import (
	"context"
	"encoding/json"
	"time"

	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
)

// Repository is the storage contract for counter rows.
//
// Missing rows are reported as apperror NOT_FOUND, storage faults as
// DATABASE_ERROR. Increment must be a single atomic statement.
type Repository interface {
	// Get reads a counter without locking it.
	Get(ctx context.Context, key numerator.Key) (*numerator.Counter, error)

	// GetForUpdate reads a counter and locks the row until the surrounding
	// transaction ends. Must be called inside a transaction.
	GetForUpdate(ctx context.Context, key numerator.Key) (*numerator.Counter, error)

	// Increment adds one to current_number and returns the updated row.
	// A row already at numerator.MaxNumber is not touched; Increment reports
	// apperror SEQUENCE_EXHAUSTED instead.
	Increment(ctx context.Context, key numerator.Key) (*numerator.Counter, error)

	// Set overwrites current_number.
	Set(ctx context.Context, key numerator.Key, value int64) (*numerator.Counter, error)

	// Provision inserts the row if absent. created is false when it already existed.
	Provision(ctx context.Context, key numerator.Key, initial int64) (created bool, err error)

	// List returns all counters of a store ordered by invoice type.
	List(ctx context.Context, storeID id.ID) ([]*numerator.Counter, error)

	// ListStores returns every store that owns at least one counter.
	ListStores(ctx context.Context) ([]id.ID, error)
}

// HistoryReader exposes the invoice numbers already recorded in sales.
type HistoryReader interface {
	// HighestInvoiceNumber returns the recorded invoice number with the
	// greatest numeric suffix for key. found is false when there is none.
	HighestInvoiceNumber(ctx context.Context, key numerator.Key) (number string, found bool, err error)
}

// AuditLogger records administrative counter changes. Both calls run inside
// the transaction that made the change.
type AuditLogger interface {
	LogCounterOverride(ctx context.Context, before, after *numerator.Counter, maxHistorical int64) error
	LogProvision(ctx context.Context, c *numerator.Counter) error
}

// AuditEntry is one recorded counter change.
type AuditEntry struct {
	ID        id.ID
	StoreID   id.ID
	CounterID id.ID
	Action    string
	UserID    string
	UserEmail string
	Changes   json.RawMessage
	CreatedAt time.Time
}

// AuditTrail reads back what AuditLogger wrote, newest first.
type AuditTrail interface {
	StoreHistory(ctx context.Context, storeID id.ID, limit int) ([]AuditEntry, error)
}
