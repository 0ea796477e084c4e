package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// SlidingWindow counts events in a Redis sorted set scored by arrival time.
// Rejected events are removed again so a client hammering the endpoint does
// not extend its own lockout.
type SlidingWindow struct {
	Client redis.Cmdable
	Prefix string
	Now    func() time.Time
}

// Allow records an event for key and reports whether it fits in the window.
func (s SlidingWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	reset := now.Add(window)
	if s.Client == nil || max <= 0 || window <= 0 {
		return true, max, reset, nil
	}

	redisKey := s.Prefix + key
	member := strconv.FormatInt(now.UnixNano(), 36) + ":" + uuid.NewString()
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	pipe := s.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, reset, err
	}

	count := int(card.Val())
	if count > max {
		if err := s.Client.ZRem(ctx, redisKey, member).Err(); err != nil {
			return false, 0, reset, err
		}
		return false, 0, reset, nil
	}
	return true, max - count, reset, nil
}
