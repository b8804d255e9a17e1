package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-queue/internal/app"
	"github.com/jwalitptl/clinic-queue/internal/config"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/worker"
)

func setupHealthCheck(a *app.App, port int, logger *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := a.PingDB(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if err := a.PingRedis(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := app.NewLogger(cfg.Log).WithFields(map[string]interface{}{"component": "worker"})

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal(err, "Failed to initialize application")
	}
	defer a.Close()

	processor, err := worker.NewOutboxProcessor(a.Repos.Outbox, a.Repos.Tx, a.Broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
	}, logger, a.Metrics)
	if err != nil {
		logger.Fatal(err, "Failed to create outbox processor")
	}

	cleanup := worker.NewCleanupWorker(
		a.Repos.Audit,
		a.Repos.Outbox,
		cfg.Retention.AuditDays,
		cfg.Retention.OutboxDays,
		cfg.Retention.CleanupInterval,
		logger,
	)

	health := setupHealthCheck(a, cfg.Worker.HealthPort, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	logger.Info("Worker started", "driver", cfg.Database.Driver)
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = health.Shutdown(shutdownCtx)
	wg.Wait()
}
