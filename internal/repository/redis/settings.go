package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/clinic-queue/internal/model"
)

const settingsKeyPrefix = "clinic:queue:"

// SettingsStore keeps each location's pause flag in a Redis hash so every API
// and worker process sees a toggle immediately.
type SettingsStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewSettingsStore(client *redis.Client) *SettingsStore {
	return &SettingsStore{client: client, now: time.Now}
}

func settingsKey(location string) string {
	return settingsKeyPrefix + location
}

func (s *SettingsStore) Get(ctx context.Context, location string) (*model.ClinicQueueSettings, error) {
	vals, err := s.client.HGetAll(ctx, settingsKey(location)).Result()
	if err != nil {
		return nil, fmt.Errorf("read queue settings: %w", err)
	}

	st := &model.ClinicQueueSettings{ClinicLocation: location}
	if len(vals) == 0 {
		return st, nil
	}
	st.IsPaused = vals["is_paused"] == "1"
	st.UpdatedBy = vals["updated_by"]
	if v := vals["paused_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.PausedAt = &t
		}
	}
	if v := vals["updated_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.UpdatedAt = t
		}
	}
	return st, nil
}

func (s *SettingsStore) SetPaused(ctx context.Context, location string, paused bool, actor string) (*model.ClinicQueueSettings, error) {
	now := s.now().UTC()
	st := &model.ClinicQueueSettings{
		ClinicLocation: location,
		IsPaused:       paused,
		UpdatedBy:      actor,
		UpdatedAt:      now,
	}

	flag, pausedAt := "0", ""
	if paused {
		flag = "1"
		pausedAt = now.Format(time.RFC3339Nano)
		st.PausedAt = &now
	}

	err := s.client.HSet(ctx, settingsKey(location),
		"is_paused", flag,
		"paused_at", pausedAt,
		"updated_by", actor,
		"updated_at", now.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return nil, fmt.Errorf("write queue settings: %w", err)
	}
	return st, nil
}
