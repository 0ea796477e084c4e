package payment

import (
	"encoding/json"
	"net/http"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// Handler exposes the synchronous confirmation endpoint.
type Handler struct {
	Confirmer *Confirmer
}

// Confirm records a payment the shopper completed with the gateway and returns
// the resulting order. Repeated calls with the same payment id return 200.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h.Confirmer == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "payment confirmation unavailable", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload ConfirmInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	view, created, err := h.Confirmer.Confirm(r.Context(), userID, payload)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	common.Data(w, status, view)
}
