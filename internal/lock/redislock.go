// Package lock serialises work on a key across API replicas using Redis.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when MaxWait elapses before the lock is free.
var ErrNotAcquired = errors.New("lock: not acquired")

// compare-and-delete so a holder whose TTL lapsed cannot free a successor's lock
var release = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Locker is a single-instance Redis mutex keyed by string.
type Locker struct {
	R            redis.Cmdable
	Prefix       string
	RetryBackoff time.Duration
	// MaxWait bounds acquisition; zero waits until ctx is done.
	MaxWait time.Duration
}

// PaymentKey is the lock key guarding reconciliation of one gateway payment.
func PaymentKey(paymentID string) string {
	return "payment:" + strings.TrimSpace(paymentID)
}

// WithLock runs fn while holding key for at most ttl. fn receives the
// caller's ctx, not the acquisition deadline.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	name := l.name(key)
	token := uuid.NewString()

	if err := l.acquire(ctx, name, token, ttl); err != nil {
		return err
	}
	defer func() {
		// ctx may already be cancelled here
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = release.Run(relCtx, l.R, []string{name}, token).Err()
	}()
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, name, token string, ttl time.Duration) error {
	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if l.MaxWait > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, l.MaxWait)
	}
	defer cancel()

	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	tick := time.NewTicker(retry)
	defer tick.Stop()
	for {
		ok, err := l.R.SetNX(waitCtx, name, token, ttl).Result()
		switch {
		case ok:
			return nil
		case err != nil && waitCtx.Err() == nil:
			return err
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrNotAcquired
		case <-tick.C:
		}
	}
}

func (l Locker) name(key string) string {
	if l.Prefix == "" {
		return "lock:" + key
	}
	return l.Prefix + ":lock:" + key
}
