// Package ratelimit throttles API routes with Redis-backed counters.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// Rejected counts requests turned away, by key scope.
var Rejected = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "toko",
	Subsystem: "ratelimit",
	Name:      "rejected_total",
	Help:      "Requests rejected by a rate limiter.",
}, []string{"scope"})

func init() { prometheus.MustRegister(Rejected) }

// Allower decides whether one more event for key fits in the window.
type Allower interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Config is one route's limit. Scope labels metrics; Key buckets requests.
type Config struct {
	Scope  string
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// ConfigFromRate parses a limiter rate such as "20-M" or "120-H".
func ConfigFromRate(formatted, scope string, key func(scope string) func(*http.Request) string) (Config, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return Config{}, err
	}
	return Config{Scope: scope, Key: key(scope), Window: rate.Period, Max: int(rate.Limit)}, nil
}

// ByUserOrIP keys authenticated requests by shopper and the rest by client IP.
func ByUserOrIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := common.UserID(r.Context()); ok {
			return scope + ":user:" + id.String()
		}
		return scope + ":ip:" + common.ClientIP(r)
	}
}

func ByIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":ip:" + common.ClientIP(r)
	}
}

// Handler applies Config through Limiter. Limiter failures are reported to
// OnError and the request is let through.
type Handler struct {
	Limiter Allower
	Config  Config
	OnError func(error)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Config.Key == nil {
		return next
	}
	limit := strconv.Itoa(max(h.Config.Max, 0))
	scope := h.Config.Scope
	if scope == "" {
		scope = "default"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining, reset, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		hdr := w.Header()
		hdr.Set("X-RateLimit-Limit", limit)
		hdr.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		hdr.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		Rejected.WithLabelValues(scope).Inc()
		wait := math.Ceil(time.Until(reset).Seconds())
		hdr.Set("Retry-After", strconv.Itoa(int(max(wait, 0))))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
	})
}
