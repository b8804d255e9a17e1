package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/pkg/messaging"
)

func TestPublishDeliversJSON(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)

	log := zerolog.Nop()
	broker, err := NewRedisBroker(client, &log)
	require.NoError(t, err)
	defer broker.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "patient-notifications")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "patient-notifications", messaging.Message{
		Type:    "patient.called",
		Payload: map[string]string{"visit_code": "K7QW3M"},
	}))

	select {
	case msg := <-sub.Channel():
		var got messaging.Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "patient.called", got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestPublishFailsWhenServerGone(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)

	log := zerolog.Nop()
	broker, err := NewRedisBroker(client, &log)
	require.NoError(t, err)
	defer broker.Close()

	mr.Close()
	assert.Error(t, broker.Publish(context.Background(), "patient-notifications", messaging.Message{Type: "patient.called"}))
}

func TestNewRedisBrokerFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	mr.Close()

	log := zerolog.Nop()
	_, err = NewRedisBroker(client, &log)
	assert.Error(t, err)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(Config{URL: "://nope"})
	assert.Error(t, err)
}
