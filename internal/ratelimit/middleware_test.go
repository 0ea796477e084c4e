package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/common"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func TestHandlerRejectsOverLimit(t *testing.T) {
	client := newRedis(t)
	cfg, err := ConfigFromRate("1-M", "checkout", ByUserOrIP)
	require.NoError(t, err)
	h := Handler{Limiter: SlidingWindow{Client: client, Prefix: "rl:"}, Config: cfg}.Middleware(okHandler())

	user := uuid.New()
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
		return r.WithContext(common.WithUserID(r.Context(), user))
	}
	before := testutil.ToFloat64(Rejected.WithLabelValues("checkout"))

	first := serve(h, req())
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := serve(h, req())
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Equal(t, "1", second.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, second.Header().Get("Retry-After"))
	require.Contains(t, second.Body.String(), "RATE_LIMITED")
	require.Equal(t, before+1, testutil.ToFloat64(Rejected.WithLabelValues("checkout")))

	// the bucket is per shopper
	other := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	other = other.WithContext(common.WithUserID(context.Background(), uuid.New()))
	require.Equal(t, http.StatusOK, serve(h, other).Code)
}

func TestHandlerFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	var reported error
	h := Handler{
		Limiter: SlidingWindow{Client: client},
		Config:  Config{Key: func(*http.Request) string { return "k" }, Window: time.Second, Max: 1},
		OnError: func(err error) { reported = err },
	}.Middleware(okHandler())

	require.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	require.Error(t, reported)
}

func TestFixedWindowByIP(t *testing.T) {
	fw, err := NewFixedWindow(newRedis(t), "rl")
	require.NoError(t, err)
	cfg, err := ConfigFromRate("2-M", "webhook", ByIP)
	require.NoError(t, err)
	require.Equal(t, time.Minute, cfg.Window)
	require.Equal(t, 2, cfg.Max)

	h := Handler{Limiter: fw, Config: cfg}.Middleware(okHandler())
	from := func(addr string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback/sandbox", nil)
		r.RemoteAddr = addr
		return r
	}

	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(h, from("10.0.0.1:1234")).Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	require.Equal(t, http.StatusOK, serve(h, from("10.0.0.2:1234")).Code)
}

func TestConfigFromRateRejectsGarbage(t *testing.T) {
	_, err := ConfigFromRate("lots", "x", ByIP)
	require.Error(t, err)
}

func TestClientKeys(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[::ffff:192.0.2.7]:5555"
	require.Equal(t, "webhook:ip:192.0.2.7", ByIP("webhook")(r))

	id := uuid.New()
	r = r.WithContext(common.WithUserID(r.Context(), id))
	require.Equal(t, "checkout:user:"+id.String(), ByUserOrIP("checkout")(r))
}
