// Package lock provides per-key mutual exclusion for background jobs.
// The aging sweep takes one lock per company so that two workers never
// sweep the same company at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"orvit/pkg/logger"
)

// ErrNotObtained is returned when another holder owns the lock.
var ErrNotObtained = errors.New("lock not obtained")

// Locker runs fn while holding the lock for key.
// It returns ErrNotObtained without calling fn when the lock is busy.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// SweepKey is the lock key of one company's aging sweep.
func SweepKey(companyID int64) string {
	return fmt.Sprintf("grni:sweep:%d", companyID)
}

// RedisLocker is a Locker backed by bsm/redislock. Usable across processes.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker wraps a go-redis client. ttl bounds how long a crashed
// holder can block others.
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

// WithLock implements Locker.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lk, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrNotObtained
	}
	if err != nil {
		return fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer func() {
		// Release on a fresh context: ctx may already be cancelled on shutdown.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "release lock", "key", key, "error", err)
		}
	}()

	return fn(ctx)
}

// LocalLocker is an in-process Locker for single-worker deployments
// without Redis.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// WithLock implements Locker.
func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if _, busy := l.held[key]; busy {
		l.mu.Unlock()
		return ErrNotObtained
	}
	l.held[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}
