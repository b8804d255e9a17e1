package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

// Message is the envelope published for outbox events.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Noop drops every message. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, interface{}) error { return nil }

func (Noop) Close() error { return nil }
