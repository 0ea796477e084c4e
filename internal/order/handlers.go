// Package order serves read access to a shopper's orders.
package order

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/store"
)

// Querier is the subset of the store the handler reads from.
type Querier interface {
	GetOrder(ctx context.Context, id uuid.UUID) (store.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]store.OrderItem, error)
}

type Handler struct {
	Q Querier
}

// Get returns one order of the authenticated user. Orders of other users are
// reported as not found.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order queries not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	ord, err := h.Q.GetOrder(r.Context(), orderID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && ord.UserID != userID) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	items, err := h.Q.ListOrderItems(r.Context(), ord.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order items", nil)
		return
	}
	common.Data(w, http.StatusOK, checkout.NewOrderView(ord, items))
}
