package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/clinic-queue/internal/repository"
)

// Locker guards short critical sections with a SETNX key holding a random
// token. Release only deletes the key if the token still matches.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	key = "lock:" + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return repository.ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *Locker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
