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

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-queue/internal/app"
	"github.com/jwalitptl/clinic-queue/internal/config"
	appointmentHandler "github.com/jwalitptl/clinic-queue/internal/handler/appointment"
	"github.com/jwalitptl/clinic-queue/internal/handler/health"
	queueHandler "github.com/jwalitptl/clinic-queue/internal/handler/queue"
	resourceHandler "github.com/jwalitptl/clinic-queue/internal/handler/resource"
	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/internal/router"
	"github.com/jwalitptl/clinic-queue/pkg/auth"
	"github.com/jwalitptl/clinic-queue/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := app.NewLogger(cfg.Log)

	if err := middleware.RegisterValidation(); err != nil {
		logger.Fatal(err, "failed to register validators")
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal(err, "failed to initialize application")
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		if _, err := a.Migrate(ctx); err != nil {
			logger.Fatal(err, "failed to apply migrations")
		}
	}

	// Without a shared database nothing else can drain the in-memory outbox.
	if cfg.Database.Driver == "memory" {
		processor, err := worker.NewOutboxProcessor(a.Repos.Outbox, a.Repos.Tx, a.Broker, worker.OutboxProcessorConfig{
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval,
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay,
		}, logger, a.Metrics)
		if err != nil {
			logger.Fatal(err, "failed to create outbox processor")
		}
		go processor.Start(ctx)
	}

	authMiddleware := middleware.NewAuthMiddleware(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer), cfg.JWT.Disabled)

	healthH := health.NewHandler(map[string]health.Pinger{
		"database": health.PingFunc(a.PingDB),
		"redis":    health.PingFunc(a.PingRedis),
	})

	r := router.NewRouter(
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RequestTimeout:   cfg.Server.RequestTimeout,
			MaxBodyBytes:     cfg.Server.MaxBodyBytes,
			AllowOrigins:     cfg.Server.AllowedOrigins,
			HSTSMaxAge:       cfg.Server.HSTSMaxAge,
			Release:          cfg.Log.Level != "debug",
		},
		logger,
		a.Metrics,
		a.Registry,
		authMiddleware,
		healthH,
		appointmentHandler.NewHandler(a.Services.Engine, a.Services.Audit),
		queueHandler.NewHandler(a.Services.Engine),
		resourceHandler.NewHandler(a.Services.Resources),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server listening", "port", cfg.Server.Port, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Server stopped")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "Server forced to shutdown")
	}
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 5 * time.Second
}
