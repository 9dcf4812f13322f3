package sales

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ncfpos/internal/core/apperror"
	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/core/tx"
	"ncfpos/internal/domain"
	"ncfpos/pkg/logger"
)

// Config tunes the retry policy applied around number issuance.
type Config struct {
	// IssueRetries is how many times a transient issuance failure is retried.
	IssueRetries uint64
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
}

// DefaultConfig returns the retry policy used in production.
func DefaultConfig() Config {
	return Config{
		IssueRetries:    3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// Service creates and reads sales.
type Service struct {
	repo      Repository
	allocator numerator.Allocator
	txManager tx.Manager
	cfg       Config
	hooks     *domain.HookRegistry[*Sale]
}

// NewService creates a new sales service.
func NewService(repo Repository, allocator numerator.Allocator, txManager tx.Manager, cfg Config) *Service {
	return &Service{
		repo:      repo,
		allocator: allocator,
		txManager: txManager,
		cfg:       cfg,
		hooks:     domain.NewHookRegistry[*Sale](),
	}
}

// Hooks returns the hook registry for registering callbacks.
func (s *Service) Hooks() *domain.HookRegistry[*Sale] {
	return s.hooks
}

// Create issues the next invoice number for the sale and persists it.
//
// Issuance and insert share one transaction: if the insert fails the counter
// increment is rolled back with it, so numbers are not burned. A sale is never
// stored without an issued number. Transient issuance failures (storage
// fault, concurrent modification) are retried with exponential backoff;
// each attempt starts from scratch and never reuses a number.
//
// A sale carrying a ClientKey that is already stored for the store is not
// created again: the stored sale is loaded into sale and Replayed is set.
func (s *Service) Create(ctx context.Context, sale *Sale) error {
	if err := s.hooks.Run(ctx, domain.BeforeCreate, sale); err != nil {
		return err
	}

	if err := sale.Validate(ctx); err != nil {
		return err
	}
	if sale.ClientKey != "" {
		if done, err := s.replay(ctx, sale); done || err != nil {
			return err
		}
	}
	sale.CalculateTotals()

	if id.IsNil(sale.ID) {
		sale.ID = id.New()
	}
	for i := range sale.Lines {
		sale.Lines[i].SaleID = sale.ID
	}

	attempt := 0
	operation := func() error {
		attempt++
		sale.InvoiceNumber = ""
		sale.CreatedAt = time.Now().UTC()

		err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			number, err := s.allocator.IssueNext(ctx, sale.Key())
			if err != nil {
				return err
			}
			sale.InvoiceNumber = number
			return s.repo.Create(ctx, sale)
		})
		if err == nil {
			return nil
		}

		sale.InvoiceNumber = ""
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		logger.Warn(ctx, "sale creation attempt failed",
			"attempt", attempt,
			"invoice_type", sale.InvoiceType,
			"error", err)
		return err
	}

	if err := backoff.Retry(operation, s.retryPolicy(ctx)); err != nil {
		if apperror.IsDuplicate(err) && sale.ClientKey != "" {
			// A concurrent request with the same key committed first.
			done, rErr := s.replay(ctx, sale)
			if done {
				return nil
			}
			if rErr != nil {
				logger.Warn(ctx, "client key lookup failed", "error", rErr)
			}
		}
		if apperror.IsDuplicate(err) {
			// The counter sits below a number that already exists in sales.
			logger.Error(ctx, "issued invoice number collides with history",
				"invoice_type", sale.InvoiceType,
				"error", err)
		}
		return err
	}

	if err := s.hooks.Run(ctx, domain.AfterCreate, sale); err != nil {
		logger.Warn(ctx, "after-create hook failed", "error", err)
	}

	logger.Info(ctx, "sale created",
		"id", sale.ID,
		"invoice_number", sale.InvoiceNumber,
		"total", sale.Total.StringFixed(2),
		"attempts", attempt)

	return nil
}

// replay loads the sale stored under sale.ClientKey into sale.
func (s *Service) replay(ctx context.Context, sale *Sale) (bool, error) {
	stored, err := s.repo.GetByClientKey(ctx, sale.StoreID, sale.ClientKey)
	if apperror.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	*sale = *stored
	sale.Replayed = true
	logger.Info(ctx, "sale replayed",
		"id", sale.ID,
		"invoice_number", sale.InvoiceNumber)
	return true, nil
}

// GetByID retrieves a sale of the store with its lines.
func (s *Service) GetByID(ctx context.Context, storeID, saleID id.ID) (*Sale, error) {
	return s.repo.GetByID(ctx, storeID, saleID)
}

// List retrieves sales with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Sale, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if s.cfg.InitialInterval > 0 {
		exp.InitialInterval = s.cfg.InitialInterval
	}
	if s.cfg.MaxInterval > 0 {
		exp.MaxInterval = s.cfg.MaxInterval
	}
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, s.cfg.IssueRetries), ctx)
}

func isTransient(err error) bool {
	return apperror.IsPersistence(err) || apperror.IsConcurrentModification(err)
}
