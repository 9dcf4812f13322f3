package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"ncfpos/internal/domain/sequence"
	"ncfpos/pkg/logger"
)

// KeyCleaner deletes expired idempotency keys.
type KeyCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Reconciler audits every store's counters.
type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]*sequence.ReconcileReport, error)
}

// ReconcileRecorder publishes reconcile results.
type ReconcileRecorder interface {
	RecordReconcile(reports []*sequence.ReconcileReport)
}

// Intervals between job runs.
type Intervals struct {
	Cleanup time.Duration
	Audit   time.Duration
}

// Worker runs the periodic maintenance jobs.
type Worker struct {
	cleaner    KeyCleaner
	reconciler Reconciler
	recorder   ReconcileRecorder // Optional.
	intervals  Intervals
	log        *logger.Logger
}

func NewWorker(cleaner KeyCleaner, reconciler Reconciler, recorder ReconcileRecorder, intervals Intervals, log *logger.Logger) *Worker {
	return &Worker{
		cleaner:    cleaner,
		reconciler: reconciler,
		recorder:   recorder,
		intervals:  intervals,
		log:        log.WithComponent("worker"),
	}
}

// Run starts both jobs and blocks until ctx is done. Each job runs once
// immediately, then on its ticker.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return every(ctx, w.intervals.Cleanup, w.cleanup) })
	g.Go(func() error { return every(ctx, w.intervals.Audit, w.audit) })
	return g.Wait()
}

func every(ctx context.Context, interval time.Duration, job func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	job(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			job(ctx)
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	n, err := w.cleaner.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}
}

func (w *Worker) audit(ctx context.Context) {
	reports, err := w.reconciler.ReconcileAll(ctx)
	if err != nil {
		w.log.Errorw("counter audit incomplete", "error", err)
	}
	if w.recorder != nil {
		w.recorder.RecordReconcile(reports)
	}

	for _, r := range reports {
		for _, d := range r.Behind {
			w.log.Warnw("counter behind sales history",
				"store_id", r.StoreID,
				"invoice_type", d.InvoiceType,
				"current_number", d.CurrentNumber,
				"max_historical", d.MaxHistorical)
		}
	}
}
