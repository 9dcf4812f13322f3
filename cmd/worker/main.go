// Package main is the entry point for the ncfpos background worker. It
// expires idempotency keys and audits counters against sales history.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ncfpos/internal/app"
	"ncfpos/pkg/logger"
)

func main() {
	cfg, log, err := app.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Info("starting ncfpos worker")

	a, err := app.New(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalw("failed to initialize", "error", err)
	}
	defer a.Close()

	if cfg.Worker.MetricsAddress != "" {
		srv := &http.Server{
			Addr:              cfg.Worker.MetricsAddress,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	w := NewWorker(a.Idempotency, a.Sequences, a.Metrics, Intervals{
		Cleanup: cfg.Worker.CleanupInterval,
		Audit:   cfg.Worker.AuditInterval,
	}, log)

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("worker stopped with error", "error", err)
		return
	}
	log.Info("worker stopped")
}
