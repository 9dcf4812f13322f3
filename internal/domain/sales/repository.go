package sales

import (
	"context"

	"ncfpos/internal/core/id"
)

// ListFilter narrows a sales listing.
type ListFilter struct {
	StoreID     id.ID
	InvoiceType string
	Limit       int
	Offset      int
}

// Repository persists sales and their lines.
type Repository interface {
	// Create inserts the sale and its lines. A duplicate invoice number or
	// client key for the store is reported as apperror DUPLICATE_ENTRY.
	Create(ctx context.Context, sale *Sale) error

	GetByID(ctx context.Context, storeID, saleID id.ID) (*Sale, error)

	// GetByClientKey returns the sale stored under a terminal's idempotency
	// key, with its lines, or apperror NOT_FOUND.
	GetByClientKey(ctx context.Context, storeID id.ID, clientKey string) (*Sale, error)

	List(ctx context.Context, filter ListFilter) ([]*Sale, error)
}
