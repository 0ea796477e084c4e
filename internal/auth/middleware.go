package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

// Middleware resolves the shopper behind a request. The bearer header wins
// over AccessCookie when both are present.
type Middleware struct {
	Verifier     *Verifier
	AccessCookie string
}

// RequireAuth rejects requests without a valid token and stores the token
// subject on the context for common.UserID.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Verifier == nil {
			common.JSONError(w, http.StatusServiceUnavailable, "AUTH_NOT_CONFIGURED", "authentication unavailable", nil)
			return
		}
		raw := m.token(r)
		if raw == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		userID, err := m.Verifier.ParseAccessToken(raw)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) {
				common.JSONError(w, http.StatusUnauthorized, appErr.Code, appErr.Message, nil)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		obs.AnnotateUser(r, userID.String())
		next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), userID)))
	})
}

func (m Middleware) token(r *http.Request) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(value)
	}
	if m.AccessCookie == "" {
		return ""
	}
	if c, err := r.Cookie(m.AccessCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
