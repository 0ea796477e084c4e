package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowAllow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Unix(1_700_000_000, 0)
	limiter := SlidingWindow{Client: client, Prefix: "rl:test:", Now: func() time.Time { return now }}
	ctx := context.Background()
	window := 10 * time.Second

	for want := 1; want >= 0; want-- {
		ok, remaining, _, err := limiter.Allow(ctx, "ip:10.0.0.1", window, 2)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, remaining)
		now = now.Add(3 * time.Second)
	}

	for i := 0; i < 3; i++ {
		ok, remaining, _, err := limiter.Allow(ctx, "ip:10.0.0.1", window, 2)
		require.NoError(t, err)
		require.False(t, ok)
		require.Zero(t, remaining)
	}
	card, err := client.ZCard(ctx, "rl:test:ip:10.0.0.1").Result()
	require.NoError(t, err)
	require.EqualValues(t, 2, card, "rejected events are not kept")

	// The first event leaves the window; the second is still counted.
	now = now.Add(5 * time.Second)
	ok, remaining, _, err := limiter.Allow(ctx, "ip:10.0.0.1", window, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, remaining)

	ok, _, _, err = limiter.Allow(ctx, "ip:10.0.0.2", window, 2)
	require.NoError(t, err)
	require.True(t, ok, "keys are independent")
}

func TestSlidingWindowWithoutClientAllows(t *testing.T) {
	ok, remaining, _, err := SlidingWindow{}.Allow(context.Background(), "k", time.Second, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 5, remaining)
}
