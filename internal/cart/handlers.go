package cart

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc      *Service
	Currency string
}

// Quote returns the priced cart of the authenticated user, optionally with a coupon applied.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	code := strings.TrimSpace(r.URL.Query().Get("coupon"))
	quote, err := h.Svc.Quote(r.Context(), userID, code)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, QuoteView(quote, h.Currency))
}

// QuoteView renders a quote for API responses.
func QuoteView(q Quote, currency string) map[string]any {
	lines := make([]map[string]any, 0, len(q.Lines))
	for _, l := range q.Lines {
		lines = append(lines, map[string]any{
			"productId": l.Product.ID,
			"name":      l.Product.Name,
			"qty":       l.Quantity,
			"unitPrice": l.Product.Price,
			"subtotal":  l.Product.Price * int64(l.Quantity),
		})
	}
	free := make([]map[string]any, 0, len(q.FreeItems))
	for _, fi := range q.FreeItems {
		free = append(free, map[string]any{
			"productId": fi.ProductID,
			"qty":       fi.Quantity,
			"unitPrice": fi.UnitPrice,
		})
	}
	unavailable := q.Unavailable
	if unavailable == nil {
		unavailable = []uuid.UUID{}
	}
	return map[string]any{
		"items":            lines,
		"freeItems":        free,
		"unavailableItems": unavailable,
		"pricing":          q.Summary,
		"currency":         currency,
	}
}
