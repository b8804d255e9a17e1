package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

// Settings is an in-process SettingsStore.
type Settings struct {
	mu    sync.RWMutex
	items map[string]model.ClinicQueueSettings
	now   func() time.Time
}

func NewSettings() *Settings {
	return &Settings{items: make(map[string]model.ClinicQueueSettings), now: time.Now}
}

func (s *Settings) Get(_ context.Context, location string) (*model.ClinicQueueSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.items[location]
	if !ok {
		return &model.ClinicQueueSettings{ClinicLocation: location}, nil
	}
	return &st, nil
}

func (s *Settings) SetPaused(_ context.Context, location string, paused bool, actor string) (*model.ClinicQueueSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := model.ClinicQueueSettings{
		ClinicLocation: location,
		IsPaused:       paused,
		UpdatedBy:      actor,
		UpdatedAt:      now,
	}
	if paused {
		st.PausedAt = &now
	}
	s.items[location] = st
	return &st, nil
}

// Locker is an in-process repository.Locker.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]bool)}
}

func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.held[key] {
		l.mu.Unlock()
		return repository.ErrLockNotAcquired
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}
