// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-checkout/internal/common"
)

var draining atomic.Bool

// SetReady flips process readiness. The API clears it when shutdown starts so
// load balancers stop routing before connections close.
func SetReady(v bool) { draining.Store(!v) }

// Checker probes the dependencies a request needs. The result maps a
// dependency name to its probe error, nil when healthy.
type Checker interface {
	Check(ctx context.Context) map[string]error
}

// Deps probes Postgres and Redis concurrently. Nil dependencies are skipped.
type Deps struct {
	Pool         *pgxpool.Pool
	Redis        redis.UniversalClient
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

func (d Deps) Check(ctx context.Context) map[string]error {
	probes := map[string]func(context.Context) error{}
	if d.Pool != nil {
		probes["db"] = within(orDefault(d.DBTimeout, 500*time.Millisecond), d.Pool.Ping)
	}
	if d.Redis != nil {
		probes["redis"] = within(orDefault(d.RedisTimeout, 300*time.Millisecond), func(ctx context.Context) error {
			return d.Redis.Ping(ctx).Err()
		})
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]error, len(probes))
	)
	for name, probe := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := probe(ctx)
			mu.Lock()
			out[name] = err
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func within(d time.Duration, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return fn(ctx)
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Handler exposes /health/live and /health/ready.
type Handler struct {
	Checker Checker
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, report{Status: "ok"})
}

// Ready fails while draining or when any dependency probe fails.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, report{Status: "draining"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, report{Status: "unconfigured"})
		return
	}
	rep := report{Status: "ok", Checks: map[string]string{}}
	for name, err := range h.Checker.Check(r.Context()) {
		rep.Checks[name] = "ok"
		if err != nil {
			rep.Checks[name] = err.Error()
			rep.Status = "degraded"
		}
	}
	status := http.StatusOK
	if rep.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, rep)
}
