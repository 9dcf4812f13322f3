// Package testutil provides in-memory stores that honor the same atomicity
// contract as the Postgres repositories: transactions are serialized and
// rolled back on error, single statements are atomic.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ncfpos/internal/core/apperror"
	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/domain/sales"
)

// Operation names accepted by FailNext.
const (
	OpGet            = "get"
	OpIncrement      = "increment"
	OpSet            = "set"
	OpProvision      = "provision"
	OpHistory        = "history"
	OpSaleCreate     = "sale_create"
	OpAuditOverride  = "audit_override"
	OpAuditProvision = "audit_provision"
)

type (
	txKey       struct{}
	readOnlyKey struct{}
)

// writeOps fail inside ReadOnly, like writes in a READ ONLY transaction.
var writeOps = map[string]bool{
	OpIncrement:      true,
	OpSet:            true,
	OpProvision:      true,
	OpSaleCreate:     true,
	OpAuditOverride:  true,
	OpAuditProvision: true,
}

// Store is an in-memory backend for counters and sales.
type Store struct {
	mu       sync.Mutex
	counters map[numerator.Key]*numerator.Counter
	sales    []*sales.Sale
	audit    []AuditRecord
	failures map[string][]error
	readOnly int
}

// Audit actions recorded by AuditRecorder.
const (
	AuditOverride  = "override"
	AuditProvision = "provision"
)

// AuditRecord is one logged counter change. Before is zero for provisions.
type AuditRecord struct {
	Action        string
	Before        numerator.Counter
	After         numerator.Counter
	MaxHistorical int64
}

type snapshot struct {
	counters map[numerator.Key]numerator.Counter
	sales    int
	audit    int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		counters: make(map[numerator.Key]*numerator.Counter),
		failures: make(map[string][]error),
	}
}

// FailNext makes the next call of op return err without touching state.
// Multiple calls queue up.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// RunInTransaction implements tx.Manager. Transactions are fully serialized;
// state is restored when fn fails.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ReadOnly implements tx.ReadOnlyManager. Writes inside fn fail.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	return s.RunInTransaction(ctx, func(ctx context.Context) error {
		s.readOnly++
		return fn(context.WithValue(ctx, readOnlyKey{}, true))
	})
}

// ReadOnlyTransactions returns how many read-only transactions were started.
func (s *Store) ReadOnlyTransactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOnly
}

// Counter returns a copy of the stored counter, or nil.
func (s *Store) Counter(key numerator.Key) *numerator.Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[key]; ok {
		cp := *c
		return &cp
	}
	return nil
}

// PutCounter stores a counter row directly.
func (s *Store) PutCounter(key numerator.Key, current int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.counters[key] = &numerator.Counter{
		ID:            id.New(),
		StoreID:       key.StoreID,
		InvoiceType:   key.InvoiceType,
		CurrentNumber: current,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// SeedSale records a historical sale carrying number, bypassing the allocator.
func (s *Store) SeedSale(key numerator.Key, number string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, &sales.Sale{
		ID:            id.New(),
		StoreID:       key.StoreID,
		InvoiceType:   key.InvoiceType,
		InvoiceNumber: number,
		CreatedAt:     time.Now().UTC(),
	})
}

// SalesCount returns the number of stored sales.
func (s *Store) SalesCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sales)
}

// AuditRecords returns the logged counter overrides.
func (s *Store) AuditRecords() []AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditRecord(nil), s.audit...)
}

// Sequences returns the sequence repository view of the store.
func (s *Store) Sequences() *SequenceRepo { return &SequenceRepo{s: s} }

// Sales returns the sales repository view of the store.
func (s *Store) Sales() *SalesRepo { return &SalesRepo{s: s} }

// Audit returns an AuditLogger writing into the store.
func (s *Store) Audit() *AuditRecorder { return &AuditRecorder{s: s} }

// do runs fn atomically: under the caller's transaction when ctx carries one,
// otherwise under its own lock.
func (s *Store) do(ctx context.Context, op string, fn func() error) error {
	if !inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if err := s.popFailure(op); err != nil {
		return err
	}
	if readOnly, _ := ctx.Value(readOnlyKey{}).(bool); readOnly && writeOps[op] {
		return apperror.NewPersistence(errors.New("cannot execute " + op + " in a read-only transaction"))
	}
	return fn()
}

func (s *Store) popFailure(op string) error {
	q := s.failures[op]
	if len(q) == 0 {
		return nil
	}
	s.failures[op] = q[1:]
	return q[0]
}

func (s *Store) snapshot() snapshot {
	counters := make(map[numerator.Key]numerator.Counter, len(s.counters))
	for k, c := range s.counters {
		counters[k] = *c
	}
	return snapshot{counters: counters, sales: len(s.sales), audit: len(s.audit)}
}

func (s *Store) restore(snap snapshot) {
	s.counters = make(map[numerator.Key]*numerator.Counter, len(snap.counters))
	for k, c := range snap.counters {
		cp := c
		s.counters[k] = &cp
	}
	s.sales = s.sales[:snap.sales]
	s.audit = s.audit[:snap.audit]
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func sortCounters(list []*numerator.Counter) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].InvoiceType < list[j].InvoiceType
	})
}

func notFound(key numerator.Key) error {
	return apperror.NewNotFound("invoice_sequence", key.String())
}
