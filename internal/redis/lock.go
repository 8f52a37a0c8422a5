package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kosukekita/Clinic-Reservation/internal/booking"
)

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker creates a booking.Locker backed by a per-key Redis SetNX lock.
// A contended key fails fast with booking.ErrLockNotAcquired rather than
// queueing behind the holder.
func NewLocker(client *redis.Client, ttl time.Duration) booking.Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockKey := "lock:" + key
	holder := uuid.NewString()

	ok, err := l.client.SetNX(ctx, lockKey, holder, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return booking.ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, lockKey, holder)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, holder string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, holder).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
