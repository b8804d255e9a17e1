package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository/memory"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/messaging"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

type fakeBroker struct {
	messaging.Noop
	mu       sync.Mutex
	failures int
	sent     []messaging.Message
}

func (b *fakeBroker) Publish(_ context.Context, _ string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return errors.New("broker down")
	}
	b.sent = append(b.sent, message.(messaging.Message))
	return nil
}

func seedEvent(t *testing.T, store *memory.Store, eventType string, at time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, store.Outbox().Create(context.Background(), &model.OutboxEvent{
		ID:        id,
		EventType: eventType,
		Payload:   json.RawMessage(`{"clinic_location":"north"}`),
		Status:    model.OutboxStatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}))
	return id
}

func newProcessor(t *testing.T, store *memory.Store, broker messaging.Broker, m *metrics.Metrics) *OutboxProcessor {
	t.Helper()
	p, err := NewOutboxProcessor(store.Outbox(), store, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		Channel:       "clinic-events",
	}, logger.Nop(), m)
	require.NoError(t, err)
	return p
}

func TestOutboxProcessorPublishesInOrder(t *testing.T) {
	store := memory.NewStore()
	broker := &fakeBroker{}
	m := metrics.Nop()
	p := newProcessor(t, store, broker, m)

	base := time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)
	seedEvent(t, store, model.EventAppointmentCheckedIn, base)
	seedEvent(t, store, model.EventAppointmentCalled, base.Add(time.Second))

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, broker.sent, 2)
	assert.Equal(t, model.EventAppointmentCheckedIn, broker.sent[0].Type)
	assert.Equal(t, model.EventAppointmentCalled, broker.sent[1].Type)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxEventsProcessed))

	pending, err := store.Outbox().GetPendingEventsWithLock(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxProcessorSchedulesRetry(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store.SetClock(clock)

	broker := &fakeBroker{failures: 2}
	m := metrics.Nop()
	p := newProcessor(t, store, broker, m)
	p.now = clock

	id := seedEvent(t, store, model.EventTreatmentCompleted, now)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxEventsFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxRetries.WithLabelValues(model.EventTreatmentCompleted)))

	// Not due yet.
	pending, err := store.Outbox().GetPendingEventsWithLock(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	now = now.Add(time.Second)
	pending, err = store.Outbox().GetPendingEventsWithLock(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, 1, pending[0].RetryCount)
	require.NotNil(t, pending[0].ErrorMessage)

	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, broker.sent, 1)
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	store := memory.NewStore()
	_, err := NewOutboxProcessor(store.Outbox(), store, messaging.Noop{}, OutboxProcessorConfig{}, logger.Nop(), metrics.Nop())
	assert.Error(t, err)
}

func TestCleanupHonoursRetention(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Audit().Create(ctx, &model.AuditLog{ID: uuid.New(), Action: "create", CreatedAt: now.AddDate(0, 0, -400)}))
	require.NoError(t, store.Audit().Create(ctx, &model.AuditLog{ID: uuid.New(), Action: "create", CreatedAt: now.AddDate(0, 0, -10)}))

	old := seedEvent(t, store, model.EventQueuePaused, now.AddDate(0, 0, -30))
	recent := seedEvent(t, store, model.EventQueueResumed, now)
	store.SetClock(func() time.Time { return now.AddDate(0, 0, -30) })
	require.NoError(t, store.Outbox().UpdateStatus(ctx, old, model.OutboxStatusProcessed, nil, nil))
	store.SetClock(func() time.Time { return now })
	require.NoError(t, store.Outbox().UpdateStatus(ctx, recent, model.OutboxStatusProcessed, nil, nil))

	w := NewCleanupWorker(store.Audit(), store.Outbox(), 365, 7, time.Hour, logger.Nop())
	w.now = func() time.Time { return now }
	require.NoError(t, w.Cleanup(ctx))

	n, err := store.Audit().Cleanup(ctx, now.AddDate(0, 0, -365))
	require.NoError(t, err)
	assert.Zero(t, n, "old audit rows already pruned")

	removed, err := store.Outbox().DeleteProcessedBefore(ctx, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Zero(t, removed)
	removed, err = store.Outbox().DeleteProcessedBefore(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed, "recent event was kept")
}
