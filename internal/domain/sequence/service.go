package sequence

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ncfpos/internal/core/apperror"
	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/core/tx"
	"ncfpos/pkg/logger"
)

var tracer = otel.Tracer("ncfpos/sequence")

// Compile-time check that Service implements numerator.Allocator.
var _ numerator.Allocator = (*Service)(nil)

// Service is the invoice sequence allocator.
type Service struct {
	repo      Repository
	history   HistoryReader
	txManager tx.ReadOnlyManager
	audit     AuditLogger // Optional.
	metrics   Metrics
}

// NewService creates the allocator. audit and metrics may be nil.
func NewService(
	repo Repository,
	history HistoryReader,
	txManager tx.ReadOnlyManager,
	audit AuditLogger,
	metrics Metrics,
) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		repo:      repo,
		history:   history,
		txManager: txManager,
		audit:     audit,
		metrics:   metrics,
	}
}

// PeekNext returns the number the next IssueNext would produce.
func (s *Service) PeekNext(ctx context.Context, key numerator.Key) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	c, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", asStorageError(err)
	}
	if c.Exhausted() {
		return "", exhaustedError(key)
	}
	return c.Next(), nil
}

// IssueNext atomically advances the counter and returns the new formatted number.
// An exhausted counter is left as it is and reported as SEQUENCE_EXHAUSTED.
//
// Joins the transaction carried by ctx, if any: the caller can then roll the
// increment back together with whatever it fails to persist afterwards.
// No retries happen here.
func (s *Service) IssueNext(ctx context.Context, key numerator.Key) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	ctx, span := tracer.Start(ctx, "sequence.IssueNext", trace.WithAttributes(
		attribute.String("store_id", key.StoreID.String()),
		attribute.String("invoice_type", key.InvoiceType),
	))
	defer span.End()

	start := time.Now()
	c, err := s.repo.Increment(ctx, key)
	if err != nil {
		err = asStorageError(err)
		s.metrics.IncIssueFailure(failureReason(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue failed")
		return "", err
	}
	s.metrics.ObserveIssued(key.InvoiceType, time.Since(start))

	number := numerator.Format(key.InvoiceType, c.CurrentNumber)
	logger.Info(ctx, "invoice number issued",
		"invoice_type", key.InvoiceType,
		"number", number)

	return number, nil
}

// SetCounter overrides the last issued number of key.
//
// The row is locked, the historical maximum is read and the new value is
// written within one transaction, so a rejected value never reaches storage.
func (s *Service) SetCounter(ctx context.Context, key numerator.Key, value int64) (*numerator.Counter, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if value < 0 {
		return nil, apperror.NewValidation("current number must not be negative").
			WithDetail("current_number", value)
	}
	if value > numerator.MaxNumber {
		return nil, outOfRangeError("current_number", value)
	}

	ctx, span := tracer.Start(ctx, "sequence.SetCounter", trace.WithAttributes(
		attribute.String("store_id", key.StoreID.String()),
		attribute.String("invoice_type", key.InvoiceType),
		attribute.Int64("value", value),
	))
	defer span.End()

	var updated *numerator.Counter
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		before, err := s.repo.GetForUpdate(ctx, key)
		if err != nil {
			return asStorageError(err)
		}

		maxHistorical, err := s.maxHistorical(ctx, key)
		if err != nil {
			return err
		}
		if value < maxHistorical {
			return belowHistoryError(maxHistorical, value)
		}

		updated, err = s.repo.Set(ctx, key, value)
		if err != nil {
			return asStorageError(err)
		}

		if s.audit != nil {
			if err := s.audit.LogCounterOverride(ctx, before, updated, maxHistorical); err != nil {
				return apperror.NewPersistence(fmt.Errorf("audit counter override: %w", err))
			}
		}

		logger.Warn(ctx, "invoice counter overridden",
			"invoice_type", key.InvoiceType,
			"from", before.CurrentNumber,
			"to", value,
			"max_historical", maxHistorical)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "set counter failed")
		return nil, err
	}

	s.metrics.IncOverride(key.InvoiceType)
	return updated, nil
}

// MaxHistorical returns the highest number already used in sales for key, or 0.
func (s *Service) MaxHistorical(ctx context.Context, key numerator.Key) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	return s.maxHistorical(ctx, key)
}

func (s *Service) maxHistorical(ctx context.Context, key numerator.Key) (int64, error) {
	number, found, err := s.history.HighestInvoiceNumber(ctx, key)
	if err != nil {
		return 0, asStorageError(err)
	}
	if !found {
		return 0, nil
	}
	n, ok := numerator.ExtractNumericSuffix(number)
	if !ok {
		// Digits beyond int64: nothing can dominate it.
		return math.MaxInt64, nil
	}
	return n, nil
}

// List returns the counters of a store.
func (s *Service) List(ctx context.Context, storeID id.ID) ([]*numerator.Counter, error) {
	counters, err := s.repo.List(ctx, storeID)
	if err != nil {
		return nil, asStorageError(err)
	}
	return counters, nil
}

// Provision creates the counter rows of a store for the given invoice types.
//
// Existing rows are left untouched. A new row starts at initial, or at the
// historical maximum when sales for that type already exist.
func (s *Service) Provision(ctx context.Context, storeID id.ID, invoiceTypes []string, initial int64) ([]*numerator.Counter, error) {
	if id.IsNil(storeID) {
		return nil, apperror.NewValidation("store id is required")
	}
	if initial < 0 {
		return nil, apperror.NewValidation("initial number must not be negative").
			WithDetail("initial", initial)
	}
	if initial > numerator.MaxNumber {
		return nil, outOfRangeError("initial", initial)
	}
	if len(invoiceTypes) == 0 {
		invoiceTypes = numerator.DefaultTypes
	}
	invoiceTypes = lo.Uniq(invoiceTypes)
	if invalid := lo.Reject(invoiceTypes, func(t string, _ int) bool { return numerator.ValidTypeCode(t) }); len(invalid) > 0 {
		return nil, apperror.NewValidation("invalid invoice type").
			WithDetail("invoice_types", invalid)
	}

	created := 0
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, invoiceType := range invoiceTypes {
			key := numerator.Key{StoreID: storeID, InvoiceType: invoiceType}

			start, err := s.maxHistorical(ctx, key)
			if err != nil {
				return err
			}
			if start > numerator.MaxNumber {
				return exhaustedError(key).WithDetail("max_historical", start)
			}
			start = max(start, initial)

			ok, err := s.repo.Provision(ctx, key, start)
			if err != nil {
				return asStorageError(err)
			}
			if !ok {
				continue
			}
			created++

			if s.audit != nil {
				counter, err := s.repo.Get(ctx, key)
				if err != nil {
					return asStorageError(err)
				}
				if err := s.audit.LogProvision(ctx, counter); err != nil {
					return apperror.NewPersistence(fmt.Errorf("audit counter provision: %w", err))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "store counters provisioned",
		"store", storeID,
		"requested", len(invoiceTypes),
		"created", created)

	return s.List(ctx, storeID)
}

func validateKey(key numerator.Key) error {
	if id.IsNil(key.StoreID) {
		return apperror.NewValidation("store id is required")
	}
	if !numerator.ValidTypeCode(key.InvoiceType) {
		return apperror.NewValidation("invalid invoice type").
			WithDetail("invoice_type", key.InvoiceType)
	}
	return nil
}

func outOfRangeError(field string, value int64) error {
	return apperror.NewValidation(fmt.Sprintf("%s must not exceed %d", field, numerator.MaxNumber)).
		WithDetail(field, value).
		WithDetail("max_number", numerator.MaxNumber)
}

func exhaustedError(key numerator.Key) *apperror.AppError {
	return apperror.NewSequenceExhausted(key.String(), numerator.MaxNumber)
}

func belowHistoryError(maxHistorical, value int64) error {
	minNext := maxHistorical
	if minNext < math.MaxInt64 {
		minNext++
	}
	return apperror.NewValidation(fmt.Sprintf("cannot set next number below %d", minNext)).
		WithDetail("max_historical", maxHistorical).
		WithDetail("min_allowed", maxHistorical).
		WithDetail("min_next", minNext).
		WithDetail("requested", value)
}

// asStorageError keeps AppErrors as they are and classifies anything else
// as a persistence failure.
func asStorageError(err error) error {
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	return apperror.NewPersistence(err)
}

func failureReason(err error) string {
	switch {
	case apperror.IsNotFound(err):
		return "not_found"
	case apperror.IsSequenceExhausted(err):
		return "exhausted"
	case apperror.IsConcurrentModification(err):
		return "conflict"
	case apperror.IsPersistence(err):
		return "persistence"
	default:
		return "other"
	}
}
