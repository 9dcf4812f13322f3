package numerator

import (
	"context"
)

// MockAllocator is a test implementation of Allocator.
// Use in unit tests to avoid database dependencies.
type MockAllocator struct {
	PeekNextFunc   func(ctx context.Context, key Key) (string, error)
	IssueNextFunc  func(ctx context.Context, key Key) (string, error)
	SetCounterFunc func(ctx context.Context, key Key, value int64) (*Counter, error)
}

// PeekNext implements Allocator.
func (m *MockAllocator) PeekNext(ctx context.Context, key Key) (string, error) {
	if m.PeekNextFunc != nil {
		return m.PeekNextFunc(ctx, key)
	}
	return Format(key.InvoiceType, 1), nil
}

// IssueNext implements Allocator.
func (m *MockAllocator) IssueNext(ctx context.Context, key Key) (string, error) {
	if m.IssueNextFunc != nil {
		return m.IssueNextFunc(ctx, key)
	}
	return Format(key.InvoiceType, 1), nil
}

// SetCounter implements Allocator.
func (m *MockAllocator) SetCounter(ctx context.Context, key Key, value int64) (*Counter, error) {
	if m.SetCounterFunc != nil {
		return m.SetCounterFunc(ctx, key, value)
	}
	return &Counter{StoreID: key.StoreID, InvoiceType: key.InvoiceType, CurrentNumber: value}, nil
}

// Ensure compile-time interface compliance.
var _ Allocator = (*MockAllocator)(nil)
