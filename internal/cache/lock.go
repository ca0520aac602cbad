package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "lock:"

// ErrLockNotAcquired is returned when a lock is still held after the wait deadline.
var ErrLockNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Locker hands out short-lived mutual exclusion locks in Redis.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewLocker creates a Locker. ttl bounds how long a crashed holder blocks others;
// wait bounds how long Acquire polls before giving up.
func (c *Cache) NewLocker(ttl, wait time.Duration) *Locker {
	return &Locker{client: c.client, ttl: ttl, wait: wait, retry: 50 * time.Millisecond}
}

// Acquire blocks until name is locked or the wait deadline passes.
// The returned func releases the lock.
func (l *Locker) Acquire(ctx context.Context, name string) (func(), error) {
	key := lockKeyPrefix + name
	token, err := newLockToken()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx failed: %w", err)
		}
		if ok {
			return func() {
				// Release must not depend on the caller's (possibly canceled) context.
				rctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				releaseScript.Run(rctx, l.client, []string{key}, token)
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

func newLockToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
