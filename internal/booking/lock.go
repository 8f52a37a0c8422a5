package booking

import (
	"context"
	"errors"
	"sync"
)

// ErrLockNotAcquired is returned by Locker implementations that refuse to
// wait for a contended lock.
var ErrLockNotAcquired = errors.New("booking lock not acquired")

// Locker guards the booking critical section for a key (one key per slot
// date). The Redis-backed implementation lives in internal/redis; the local
// one below serializes within a single process.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLocker returns an in-process Locker keyed by string. Suitable for
// single-node deployments and tests.
func NewLocalLocker() Locker {
	return &localLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
