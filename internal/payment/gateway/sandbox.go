package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sandbox synthesises deterministic intents without a network call. It is used
// for local development and tests; callbacks are still signature checked.
type Sandbox struct {
	Secret  string
	BaseURL string
}

func (s Sandbox) Name() string { return "sandbox" }

// CreateIntent builds a deterministic hosted page for the basket.
func (s Sandbox) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	if strings.TrimSpace(req.BasketID) == "" {
		return Intent{}, errors.New("gateway: basket id is required")
	}
	host := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if host == "" {
		host = "https://checkout-sandbox.local"
	}
	token := "sbx-" + req.BasketID
	return Intent{
		Provider:    s.Name(),
		Token:       token,
		RedirectURL: fmt.Sprintf("%s/pay/%s", host, token),
		ExpiresAt:   req.ExpiresAt,
	}, nil
}

func (s Sandbox) VerifyCallback(r *http.Request, body []byte) (Callback, error) {
	return VerifySigned(s.Secret, r, body)
}
