// Package app wires storage and domain services from configuration.
// Shared by the server, the worker and the provisioning CLI.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"ncfpos/internal/config"
	"ncfpos/internal/domain/sales"
	"ncfpos/internal/domain/sequence"
	"ncfpos/internal/infrastructure/metrics"
	"ncfpos/internal/infrastructure/storage/postgres"
	"ncfpos/internal/infrastructure/storage/postgres/sales_repo"
	"ncfpos/internal/infrastructure/storage/postgres/sequence_repo"
	"ncfpos/pkg/logger"
)

// App holds the wired components.
type App struct {
	Config *config.Configuration
	Log    *logger.Logger

	Pool        *postgres.Pool
	TxManager   *postgres.TxManager
	Audit       *postgres.AuditService
	Idempotency *postgres.IdempotencyStore
	Metrics     *metrics.Metrics

	Sequences *sequence.Service
	Sales     *sales.Service
}

// Load reads the configuration and builds the logger.
func Load() (*config.Configuration, *logger.Logger, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// New connects to Postgres and builds the services. reg may be nil, in
// which case metrics are not collected.
func New(ctx context.Context, cfg *config.Configuration, log *logger.Logger, reg prometheus.Registerer) (*App, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.Postgres.DSN)
	poolCfg.MaxConns = cfg.Postgres.MaxConns
	poolCfg.MinConns = cfg.Postgres.MinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	txOpts := postgres.DefaultTxOptions()
	txOpts.LockTimeout = cfg.Postgres.LockTimeout
	txm := postgres.NewTxManager(pool).WithOptions(txOpts)

	auditSvc, err := postgres.NewAuditService(txm)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init audit: %w", err)
	}

	a := &App{
		Config:      cfg,
		Log:         log,
		Pool:        pool,
		TxManager:   txm,
		Audit:       auditSvc,
		Idempotency: postgres.NewIdempotencyStore(txm, cfg.Idempotency.TTL),
	}

	var seqMetrics sequence.Metrics
	if reg != nil {
		a.Metrics = metrics.New(reg)
		seqMetrics = a.Metrics
	}

	salesRepo := sales_repo.NewRepo(txm)
	a.Sequences = sequence.NewService(sequence_repo.NewRepo(txm), salesRepo, txm, auditSvc, seqMetrics)
	a.Sales = sales.NewService(salesRepo, a.Sequences, txm, sales.Config{
		IssueRetries:    cfg.Sales.IssueRetries,
		InitialInterval: cfg.Sales.InitialInterval,
		MaxInterval:     cfg.Sales.MaxInterval,
	})

	return a, nil
}

// Close releases the connection pool and flushes the logger.
func (a *App) Close() {
	a.Pool.Close()
	_ = a.Log.Sync()
}
