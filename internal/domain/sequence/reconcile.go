package sequence

import (
	"context"
	"fmt"

	"ncfpos/internal/core/id"
	"ncfpos/pkg/logger"
)

// Drift is a counter that sits below a number already used in sales.
// Issuing from it would collide with an existing invoice.
type Drift struct {
	InvoiceType   string `json:"invoice_type_id"`
	CurrentNumber int64  `json:"current_number"`
	MaxHistorical int64  `json:"max_historical"`
}

// ReconcileReport is the audit result for one store.
type ReconcileReport struct {
	StoreID id.ID   `json:"store_id"`
	Checked int     `json:"checked"`
	Behind  []Drift `json:"behind"`
}

// Healthy reports whether every counter dominates its history.
func (r *ReconcileReport) Healthy() bool {
	return len(r.Behind) == 0
}

// Reconcile compares each counter of a store with the highest number recorded
// in its sales. It never mutates a counter; repair goes through SetCounter.
// Counters and history are read from one read-only snapshot.
func (s *Service) Reconcile(ctx context.Context, storeID id.ID) (*ReconcileReport, error) {
	report := &ReconcileReport{StoreID: storeID, Behind: []Drift{}}

	err := s.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		counters, err := s.List(ctx, storeID)
		if err != nil {
			return err
		}

		for _, c := range counters {
			maxHistorical, err := s.maxHistorical(ctx, c.Key())
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", c.InvoiceType, err)
			}
			report.Checked++

			if c.CurrentNumber < maxHistorical {
				report.Behind = append(report.Behind, Drift{
					InvoiceType:   c.InvoiceType,
					CurrentNumber: c.CurrentNumber,
					MaxHistorical: maxHistorical,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !report.Healthy() {
		logger.Warn(ctx, "invoice counters behind history",
			"store", storeID,
			"behind", len(report.Behind))
	}

	return report, nil
}

// ReconcileAll audits every provisioned store. A failing store does not stop
// the others; its error is returned alongside the reports collected so far.
func (s *Service) ReconcileAll(ctx context.Context) ([]*ReconcileReport, error) {
	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return nil, asStorageError(err)
	}

	reports := make([]*ReconcileReport, 0, len(stores))
	var firstErr error
	for _, storeID := range stores {
		report, err := s.Reconcile(ctx, storeID)
		if err != nil {
			logger.Error(ctx, "reconcile store failed", "store", storeID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		reports = append(reports, report)
	}

	return reports, firstErr
}
