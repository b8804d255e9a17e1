package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/messaging"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// Channel every event is published on, wrapped in a messaging.Message.
	Channel string
}

type OutboxProcessor struct {
	repo    repository.OutboxRepository
	tx      repository.Transactor
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	tx repository.Transactor,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		return nil, fmt.Errorf("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		return nil, fmt.Errorf("RetryDelay must be greater than 0")
	}
	if config.Channel == "" {
		config.Channel = "events"
	}

	return &OutboxProcessor{
		repo:    repo,
		tx:      tx,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch publishes one batch of due events. Row locks are held for the
// whole batch so concurrent workers never publish the same event.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	processed := 0
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		events, err := p.repo.GetPendingEventsWithLock(ctx, p.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}

		for _, event := range events {
			if err := p.processEvent(ctx, event); err != nil {
				p.logger.Error(err, "Failed to process event",
					"event_id", event.ID.String(),
					"event_type", event.EventType)
				continue
			}
			processed++
		}
		return nil
	})
	return processed, err
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	msg := messaging.Message{Type: event.EventType, Payload: event.Payload}
	err := retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func(attempt int) error {
		if attempt > 0 {
			p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
		}
		return p.broker.Publish(ctx, p.config.Channel, msg)
	})

	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		errStr := err.Error()
		retryAt := p.now().Add(p.config.RetryDelay * time.Duration(event.RetryCount+1))
		if updateErr := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusFailed, &errStr, &retryAt); updateErr != nil {
			p.logger.Error(updateErr, "Failed to update event status", "event_id", event.ID.String())
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil, nil); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func(attempt int) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(i); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
