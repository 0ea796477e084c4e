package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/resilience"
)

func TestBreakerPublishesTransitions(t *testing.T) {
	const target = "payment-metrics-test"
	ctx := context.Background()
	state := func() float64 { return testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target)) }
	moved := func(from, to string) float64 {
		return testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues(target, from, to))
	}

	b := resilience.NewBreaker(2, 0.5, 15*time.Millisecond).WithTarget(target)
	require.Equal(t, float64(resilience.Closed), state())

	for i := 0; i < 2; i++ {
		require.True(t, b.Allow(ctx))
		b.Report(ctx, false)
	}
	require.Equal(t, float64(resilience.Open), state())

	require.Eventually(t, func() bool { return b.Allow(ctx) }, 200*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, float64(resilience.HalfOpen), state())

	// the probe fails, so the breaker reopens
	b.Report(ctx, false)
	require.Equal(t, float64(resilience.Open), state())

	require.Eventually(t, func() bool { return b.Allow(ctx) }, 200*time.Millisecond, 5*time.Millisecond)
	b.Report(ctx, true)
	require.Equal(t, float64(resilience.Closed), state())

	require.Equal(t, 1.0, moved("closed", "open"))
	require.Equal(t, 2.0, moved("open", "half_open"))
	require.Equal(t, 1.0, moved("half_open", "open"))
	require.Equal(t, 1.0, moved("half_open", "closed"))
	require.Equal(t, 2.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues(target)))
}
