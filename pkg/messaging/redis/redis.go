package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-queue/pkg/messaging"
)

type RedisBroker struct {
	client *redis.Client
	cb     *circuitbreaker.CircuitBreaker
	logger *zerolog.Logger
}

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

// NewClient parses the URL and applies pool settings.
func NewClient(config Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	return redis.NewClient(opts), nil
}

func NewRedisBroker(client *redis.Client, logger *zerolog.Logger) (*RedisBroker, error) {
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "redis-broker",
		MaxFailures: 5,
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		OnChange: func(name, from, to string) {
			logger.Warn().Str("breaker", name).Str("from", from).Str("to", to).Msg("circuit breaker state changed")
		},
	})

	return &RedisBroker{
		client: client,
		cb:     cb,
		logger: logger,
	}, nil
}

var _ messaging.Broker = (*RedisBroker)(nil)

func (b *RedisBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.cb.Execute(func() error {
		return b.client.Publish(ctx, channel, payload).Err()
	})
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
