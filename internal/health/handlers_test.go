package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/health"
)

type stubChecker map[string]error

func (s stubChecker) Check(context.Context) map[string]error { return s }

type readyBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func ready(t *testing.T, h health.Handler) (int, readyBody) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body readyBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestReady(t *testing.T) {
	code, body := ready(t, health.Handler{Checker: stubChecker{"db": nil, "redis": nil}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]string{"db": "ok", "redis": "ok"}, body.Checks)

	code, body = ready(t, health.Handler{Checker: stubChecker{"db": errors.New("db down"), "redis": nil}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "degraded", body.Status)
	require.Equal(t, "db down", body.Checks["db"])

	code, _ = ready(t, health.Handler{})
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestDepsProbesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	deps := health.Deps{Redis: client, RedisTimeout: 100 * time.Millisecond}
	res := deps.Check(context.Background())
	require.Len(t, res, 1, "a nil pool is not probed")
	require.NoError(t, res["redis"])

	mr.Close()
	require.Error(t, deps.Check(context.Background())["redis"])
}
