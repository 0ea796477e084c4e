package common

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	redis "github.com/redis/go-redis/v9"
)

// IdempotencyHeader carries the client-chosen key for a write request.
const IdempotencyHeader = "Idempotency-Key"

// Idem rejects concurrent or repeated write requests that share an
// Idempotency-Key. Keys are scoped to the authenticated user and the route.
// A request that ends in a 5xx releases its key so the client can retry.
type Idem struct {
	R   redis.Cmdable
	TTL time.Duration
}

func idemKey(r *http.Request, header string) string {
	owner := "anon"
	if id, ok := UserID(r.Context()); ok {
		owner = id.String()
	}
	return "idem:" + Digest(owner, r.Method, r.URL.Path, header)
}

// Middleware enforces idempotency semantics for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		ctx := r.Context()
		key := idemKey(r, header)
		ok, err := i.R.SetNX(ctx, key, "locked", ttl).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		rec := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			if rec.Status() >= http.StatusInternalServerError {
				_ = i.R.Del(context.WithoutCancel(ctx), key).Err()
			}
		}()
		next.ServeHTTP(rec, r)
	})
}
