// Package lock provides a single-holder cycle lock backed by Redis.
// The daily trigger is already exclusive in normal operation; the lock
// guards against overlapping manual invocations and retried triggers.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another holder owns the cycle lock.
var ErrNotAcquired = fmt.Errorf("cycle lock already held")

// CycleLock serializes cycle runs for a given cycle date.
type CycleLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCycleLock creates a lock manager. The TTL bounds how long a crashed
// run can block the next one.
func NewCycleLock(client *redis.Client, ttl time.Duration) *CycleLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CycleLock{client: client, ttl: ttl}
}

// Acquire takes the lock for cycleDate. The returned release function is
// safe to call even after the TTL has expired; it only deletes the key if
// this holder still owns it.
func (l *CycleLock) Acquire(ctx context.Context, cycleDate string) (release func(context.Context) error, err error) {
	key := "dca:cycle-lock:" + cycleDate
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	release = func(ctx context.Context) error {
		current, err := l.client.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read cycle lock for release: %w", err)
		}
		if current != token {
			return nil
		}
		if err := l.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to release cycle lock: %w", err)
		}
		return nil
	}
	return release, nil
}
