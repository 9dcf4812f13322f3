package numerator

import (
	"context"
	"fmt"
	"time"

	"ncfpos/internal/core/id"
)

// Key addresses exactly one counter row.
type Key struct {
	StoreID     id.ID
	InvoiceType string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.StoreID, k.InvoiceType)
}

// Counter is the persisted last-issued number for a Key.
type Counter struct {
	ID            id.ID     `db:"id" json:"id"`
	StoreID       id.ID     `db:"store_id" json:"store_id"`
	InvoiceType   string    `db:"invoice_type_id" json:"invoice_type_id"`
	CurrentNumber int64     `db:"current_number" json:"current_number"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Key returns the addressing key of the counter.
func (c *Counter) Key() Key {
	return Key{StoreID: c.StoreID, InvoiceType: c.InvoiceType}
}

// Exhausted reports whether no further number can be issued from c.
func (c *Counter) Exhausted() bool {
	return c.CurrentNumber >= MaxNumber
}

// Next is the identifier the next IssueNext call would return.
// Callers check Exhausted first.
func (c *Counter) Next() string {
	return Format(c.InvoiceType, c.CurrentNumber+1)
}

// Allocator issues fiscal invoice numbers.
//
// IssueNext must be atomic at the storage layer: concurrent callers for the
// same Key never observe the same value. Errors are *apperror.AppError with
// codes NOT_FOUND, VALIDATION_ERROR, DATABASE_ERROR or CONCURRENT_MODIFICATION.
type Allocator interface {
	// PeekNext returns the number the next IssueNext would produce. No side effects.
	PeekNext(ctx context.Context, key Key) (string, error)

	// IssueNext advances the counter by one and returns the formatted new value.
	IssueNext(ctx context.Context, key Key) (string, error)

	// SetCounter overrides the last issued number. Values below the highest
	// number already present in sales are rejected.
	SetCounter(ctx context.Context, key Key, value int64) (*Counter, error)
}
