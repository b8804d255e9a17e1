package notification

import (
	"context"
	"time"

	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/messaging"
)

const sendTimeout = 5 * time.Second

// Notifier delivers a one-way message to a patient. Callers never wait on it.
type Notifier interface {
	Notify(ctx context.Context, phone, message string)
}

// Message is what gets published for the delivery service to pick up.
type Message struct {
	Phone   string    `json:"phone"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

type service struct {
	broker  messaging.Broker
	channel string
	logger  *logger.Logger
}

func NewService(broker messaging.Broker, channel string, log *logger.Logger) Notifier {
	if channel == "" {
		channel = "notifications"
	}
	return &service{broker: broker, channel: channel, logger: log}
}

func (s *service) Notify(ctx context.Context, phone, message string) {
	if phone == "" {
		return
	}
	msg := Message{Phone: phone, Message: message, SentAt: time.Now().UTC()}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := s.broker.Publish(ctx, s.channel, msg); err != nil {
			s.logger.Error(err, "Failed to publish patient notification", "channel", s.channel)
		}
	}()
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, string, string) {}
