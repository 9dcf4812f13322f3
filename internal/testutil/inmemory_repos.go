package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"ncfpos/internal/core/apperror"
	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/domain/sales"
	"ncfpos/internal/domain/sequence"
)

var (
	_ sequence.Repository    = (*SequenceRepo)(nil)
	_ sequence.HistoryReader = (*SalesRepo)(nil)
	_ sequence.AuditLogger   = (*AuditRecorder)(nil)
	_ sequence.AuditTrail    = (*AuditRecorder)(nil)
	_ sales.Repository       = (*SalesRepo)(nil)
)

// SequenceRepo is the in-memory sequence.Repository.
type SequenceRepo struct {
	s *Store
}

func (r *SequenceRepo) Get(ctx context.Context, key numerator.Key) (*numerator.Counter, error) {
	var out *numerator.Counter
	err := r.s.do(ctx, OpGet, func() error {
		c, ok := r.s.counters[key]
		if !ok {
			return notFound(key)
		}
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

// GetForUpdate behaves like Get; transactions already hold the store lock.
func (r *SequenceRepo) GetForUpdate(ctx context.Context, key numerator.Key) (*numerator.Counter, error) {
	return r.Get(ctx, key)
}

func (r *SequenceRepo) Increment(ctx context.Context, key numerator.Key) (*numerator.Counter, error) {
	var out *numerator.Counter
	err := r.s.do(ctx, OpIncrement, func() error {
		c, ok := r.s.counters[key]
		if !ok {
			return notFound(key)
		}
		if c.Exhausted() {
			return apperror.NewSequenceExhausted(key.String(), numerator.MaxNumber)
		}
		c.CurrentNumber++
		c.UpdatedAt = time.Now().UTC()
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

func (r *SequenceRepo) Set(ctx context.Context, key numerator.Key, value int64) (*numerator.Counter, error) {
	var out *numerator.Counter
	err := r.s.do(ctx, OpSet, func() error {
		c, ok := r.s.counters[key]
		if !ok {
			return notFound(key)
		}
		c.CurrentNumber = value
		c.UpdatedAt = time.Now().UTC()
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

func (r *SequenceRepo) Provision(ctx context.Context, key numerator.Key, initial int64) (bool, error) {
	created := false
	err := r.s.do(ctx, OpProvision, func() error {
		if _, ok := r.s.counters[key]; ok {
			return nil
		}
		now := time.Now().UTC()
		r.s.counters[key] = &numerator.Counter{
			ID:            id.New(),
			StoreID:       key.StoreID,
			InvoiceType:   key.InvoiceType,
			CurrentNumber: initial,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		created = true
		return nil
	})
	return created, err
}

func (r *SequenceRepo) List(ctx context.Context, storeID id.ID) ([]*numerator.Counter, error) {
	var out []*numerator.Counter
	err := r.s.do(ctx, OpGet, func() error {
		for _, c := range r.s.counters {
			if c.StoreID == storeID {
				cp := *c
				out = append(out, &cp)
			}
		}
		sortCounters(out)
		return nil
	})
	return out, err
}

func (r *SequenceRepo) ListStores(ctx context.Context) ([]id.ID, error) {
	var out []id.ID
	err := r.s.do(ctx, OpGet, func() error {
		seen := make(map[id.ID]bool)
		for _, c := range r.s.counters {
			if !seen[c.StoreID] {
				seen[c.StoreID] = true
				out = append(out, c.StoreID)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
		return nil
	})
	return out, err
}

// SalesRepo is the in-memory sales.Repository and sequence.HistoryReader.
type SalesRepo struct {
	s *Store
}

func (r *SalesRepo) Create(ctx context.Context, sale *sales.Sale) error {
	return r.s.do(ctx, OpSaleCreate, func() error {
		for _, existing := range r.s.sales {
			if existing.StoreID != sale.StoreID {
				continue
			}
			if existing.InvoiceNumber == sale.InvoiceNumber {
				return apperror.NewDuplicate("sale", "invoice_number", sale.InvoiceNumber)
			}
			if sale.ClientKey != "" && existing.ClientKey == sale.ClientKey {
				return apperror.NewDuplicate("sale", "client_key", sale.ClientKey)
			}
		}
		cp := *sale
		cp.Lines = append([]sales.Line(nil), sale.Lines...)
		r.s.sales = append(r.s.sales, &cp)
		return nil
	})
}

func (r *SalesRepo) GetByID(ctx context.Context, storeID, saleID id.ID) (*sales.Sale, error) {
	var out *sales.Sale
	err := r.s.do(ctx, OpGet, func() error {
		for _, sale := range r.s.sales {
			if sale.ID == saleID && sale.StoreID == storeID {
				cp := *sale
				cp.Lines = append([]sales.Line(nil), sale.Lines...)
				out = &cp
				return nil
			}
		}
		return apperror.NewNotFound("sale", saleID)
	})
	return out, err
}

func (r *SalesRepo) GetByClientKey(ctx context.Context, storeID id.ID, clientKey string) (*sales.Sale, error) {
	var out *sales.Sale
	err := r.s.do(ctx, OpGet, func() error {
		for _, sale := range r.s.sales {
			if sale.StoreID == storeID && clientKey != "" && sale.ClientKey == clientKey {
				cp := *sale
				cp.Lines = append([]sales.Line(nil), sale.Lines...)
				out = &cp
				return nil
			}
		}
		return apperror.NewNotFound("sale", clientKey)
	})
	return out, err
}

func (r *SalesRepo) List(ctx context.Context, filter sales.ListFilter) ([]*sales.Sale, error) {
	out := []*sales.Sale{}
	err := r.s.do(ctx, OpGet, func() error {
		var matched []*sales.Sale
		for _, sale := range r.s.sales {
			if sale.StoreID != filter.StoreID {
				continue
			}
			if filter.InvoiceType != "" && sale.InvoiceType != filter.InvoiceType {
				continue
			}
			matched = append(matched, sale)
		}
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		})
		for i := filter.Offset; i < len(matched) && len(out) < filter.Limit; i++ {
			cp := *matched[i]
			out = append(out, &cp)
		}
		return nil
	})
	return out, err
}

// HighestInvoiceNumber orders suffixes like the SQL query does: leading
// zeros stripped, longer digit runs first, then lexically. Suffixes too wide
// for int64 are therefore returned too.
func (r *SalesRepo) HighestInvoiceNumber(ctx context.Context, key numerator.Key) (string, bool, error) {
	var (
		best       string
		bestDigits string
		found      bool
	)
	err := r.s.do(ctx, OpHistory, func() error {
		for _, sale := range r.s.sales {
			if sale.StoreID != key.StoreID || sale.InvoiceType != key.InvoiceType {
				continue
			}
			digits, ok := suffixDigits(sale.InvoiceNumber)
			if !ok {
				continue
			}
			if !found || len(digits) > len(bestDigits) ||
				(len(digits) == len(bestDigits) && digits > bestDigits) {
				best, bestDigits, found = sale.InvoiceNumber, digits, true
			}
		}
		return nil
	})
	return best, found, err
}

// suffixDigits returns the digits after the last hyphen without leading zeros.
func suffixDigits(number string) (string, bool) {
	i := strings.LastIndexByte(number, '-')
	if i < 0 || i == len(number)-1 {
		return "", false
	}
	digits := number[i+1:]
	for _, ch := range digits {
		if ch < '0' || ch > '9' {
			return "", false
		}
	}
	return strings.TrimLeft(digits, "0"), true
}

// AuditRecorder is the in-memory sequence.AuditLogger.
type AuditRecorder struct {
	s *Store
}

func (a *AuditRecorder) LogCounterOverride(ctx context.Context, before, after *numerator.Counter, maxHistorical int64) error {
	return a.s.do(ctx, OpAuditOverride, func() error {
		a.s.audit = append(a.s.audit, AuditRecord{
			Action:        AuditOverride,
			Before:        *before,
			After:         *after,
			MaxHistorical: maxHistorical,
		})
		return nil
	})
}

func (a *AuditRecorder) LogProvision(ctx context.Context, c *numerator.Counter) error {
	return a.s.do(ctx, OpAuditProvision, func() error {
		a.s.audit = append(a.s.audit, AuditRecord{Action: AuditProvision, After: *c})
		return nil
	})
}

// StoreHistory returns the recorded changes of a store, newest first.
func (a *AuditRecorder) StoreHistory(ctx context.Context, storeID id.ID, limit int) ([]sequence.AuditEntry, error) {
	out := []sequence.AuditEntry{}
	err := a.s.do(ctx, OpGet, func() error {
		for i := len(a.s.audit) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
			rec := a.s.audit[i]
			if rec.After.StoreID != storeID {
				continue
			}
			changes, err := json.Marshal(map[string]any{
				"invoice_type_id": rec.After.InvoiceType,
				"current_number":  rec.After.CurrentNumber,
			})
			if err != nil {
				return err
			}
			out = append(out, sequence.AuditEntry{
				ID:        id.New(),
				StoreID:   storeID,
				CounterID: rec.After.ID,
				Action:    rec.Action,
				UserID:    "system",
				Changes:   changes,
				CreatedAt: rec.After.UpdatedAt,
			})
		}
		return nil
	})
	return out, err
}
