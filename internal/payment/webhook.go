package payment

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/payment/gateway"
)

const maxCallbackBody = 64 << 10

// Webhook receives asynchronous gateway callbacks.
type Webhook struct {
	Reconciler *Reconciler
	Providers  map[string]gateway.Provider
	Replay     redis.Cmdable
	ReplayTTL  time.Duration
}

// Handle verifies the callback signature, drops byte-identical replays and
// hands the callback to the reconciler.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Reconciler == nil || len(h.Providers) == 0 {
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Providers[providerKey]
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	cb, err := provider.VerifyCallback(r, body)
	switch {
	case errors.Is(err, gateway.ErrInvalidSignature):
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	case err != nil:
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", "malformed callback", nil)
		return
	}

	ctx := r.Context()
	replayKey := ""
	if h.Replay != nil && h.ReplayTTL > 0 {
		replayKey = fmt.Sprintf("wh:%s:%s", providerKey, common.Digest(string(body)))
		fresh, err := h.Replay.SetNX(ctx, replayKey, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay guard unavailable", nil)
			return
		}
		if !fresh {
			common.JSON(w, http.StatusOK, map[string]any{"status": "replayed"})
			return
		}
	}

	res, err := h.Reconciler.HandleCallback(ctx, cb)
	if err != nil {
		var notFound *OrderNotFoundAnomaly
		if replayKey != "" && !errors.As(err, &notFound) {
			_ = h.Replay.Del(ctx, replayKey).Err()
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"status": string(res.Outcome),
		"order":  checkout.NewOrderView(res.Order, nil),
	})
}
