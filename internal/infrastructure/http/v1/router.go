// Package v1 provides HTTP API version 1.
package v1

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ncfpos/internal/domain/audit"
	"ncfpos/internal/domain/sales"
	"ncfpos/internal/domain/sequence"
	"ncfpos/internal/infrastructure/http/v1/handlers"
	"ncfpos/internal/infrastructure/http/v1/middleware"
	"ncfpos/internal/infrastructure/metrics"
	"ncfpos/pkg/logger"
)

// RouterConfig holds the dependencies of the API.
type RouterConfig struct {
	// Database backs the readiness probe.
	Database handlers.Database

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	SequenceService *sequence.Service
	SalesService    *sales.Service

	// AuditTrail serves GET /sequences/history. Optional.
	AuditTrail sequence.AuditTrail

	// IdempotencyStore is required when IdempotencyEnabled is set.
	IdempotencyStore   middleware.IdempotencyStore
	IdempotencyEnabled bool

	// Metrics and Gatherer are optional; without them /metrics is not mounted.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	Version string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics.HTTPDuration))
	}
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Database, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator)) // 1. Validate JWT
		protected.Use(middleware.StoreScope())           // 2. Resolve X-Store-ID

		// 3. Replay repeated writes from offline terminals
		if cfg.IdempotencyEnabled && cfg.IdempotencyStore != nil {
			var onReplay func()
			if cfg.Metrics != nil {
				onReplay = cfg.Metrics.IdempotentHits.Inc
			}
			protected.Use(middleware.Idempotency(cfg.IdempotencyStore, onReplay))
		}

		RegisterSequenceRoutes(protected.Group("/sequences"),
			handlers.NewSequenceHandler(cfg.SequenceService, cfg.AuditTrail))
		RegisterSaleRoutes(protected.Group("/sales"),
			handlers.NewSaleHandler(cfg.SalesService))
	}

	return router
}

// RegisterSaleHooks stamps the acting user on new sales.
func RegisterSaleHooks(svc *sales.Service) {
	svc.Hooks().OnBeforeCreate(func(ctx context.Context, sale *sales.Sale) error {
		audit.EnrichCreatedBy(ctx, &sale.CreatedBy)
		return nil
	})
}
