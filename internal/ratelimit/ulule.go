package ratelimit

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow adapts a ulule limiter store to Allower. Unlike the sliding
// window it costs one INCR per request, which suits high-volume callbacks.
type FixedWindow struct {
	Store limiter.Store
}

// NewFixedWindow builds a FixedWindow on a Redis-backed ulule store.
func NewFixedWindow(client redis.UniversalClient, prefix string) (FixedWindow, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return FixedWindow{}, err
	}
	return FixedWindow{Store: store}, nil
}

func (f FixedWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if f.Store == nil {
		return false, 0, time.Time{}, errors.New("ratelimit: store not configured")
	}
	if max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lctx, err := f.Store.Get(ctx, key, limiter.Rate{Period: window, Limit: int64(max)})
	if err != nil {
		return false, 0, time.Time{}, err
	}
	return !lctx.Reached, int(lctx.Remaining), time.Unix(lctx.Reset, 0), nil
}
