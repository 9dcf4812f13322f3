// Package main is the entry point for the ncfpos API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ncfpos/internal/app"
	"ncfpos/internal/domain/auth"
	v1 "ncfpos/internal/infrastructure/http/v1"
)

var version = "dev"

func main() {
	cfg, log, err := app.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Infow("starting ncfpos server", "version", version)

	a, err := app.New(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalw("failed to initialize", "error", err)
	}
	defer a.Close()
	a.Pool.LogStats(ctx)

	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(cfg.Auth.JWTSecret, cfg.Auth.Issuer))
	v1.RegisterSaleHooks(a.Sales)

	router := v1.NewRouter(v1.RouterConfig{
		Database:           a.Pool,
		Logger:             log,
		JWTValidator:       jwtService,
		SequenceService:    a.Sequences,
		SalesService:       a.Sales,
		AuditTrail:         a.Audit,
		IdempotencyStore:   a.Idempotency,
		IdempotencyEnabled: cfg.Idempotency.Enabled,
		Metrics:            a.Metrics,
		Gatherer:           prometheus.DefaultGatherer,
		Version:            version,
	})

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
