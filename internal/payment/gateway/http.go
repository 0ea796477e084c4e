package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-checkout/internal/resilience"
)

// HTTPGateway talks to a hosted payment page provider over signed JSON requests.
type HTTPGateway struct {
	ProviderName string
	BaseURL      string
	Secret       string
	Client       resilience.HTTPClient
}

// NewHTTPGateway wires an HTTPGateway with an instrumented transport, bounded
// retries and a breaker tagged with the provider name.
func NewHTTPGateway(name, baseURL, secret string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		ProviderName: name,
		BaseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Secret:       secret,
		Client: resilience.HTTPClient{
			Client: &http.Client{
				Timeout:   timeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("payment-" + name),
			MaxAttempts: 3,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     timeout,
		},
	}
}

func (g *HTTPGateway) Name() string { return g.ProviderName }

type intentPayload struct {
	OrderID        string `json:"orderId"`
	ConversationID string `json:"conversationId"`
	BasketID       string `json:"basketId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	CallbackURL    string `json:"callbackUrl"`
	ExpiresAt      int64  `json:"expiresAt"`
}

type intentReply struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirectUrl"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// CreateIntent registers the payment with the gateway and returns the hosted page location.
func (g *HTTPGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if g.BaseURL == "" {
		return Intent{}, errors.New("gateway: base url not configured")
	}
	body, err := json.Marshal(intentPayload{
		OrderID:        req.OrderID.String(),
		ConversationID: req.CorrelationID,
		BasketID:       req.BasketID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		CallbackURL:    req.CallbackURL,
		ExpiresAt:      req.ExpiresAt.Unix(),
	})
	if err != nil {
		return Intent{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/payment-intents", bytes.NewReader(body))
	if err != nil {
		return Intent{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(SignatureHeader, Sign(g.Secret, body))
	httpReq.Header.Set("Idempotency-Key", req.BasketID)

	resp, err := g.Client.Do(ctx, httpReq)
	if err != nil {
		return Intent{}, fmt.Errorf("gateway: create intent: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Intent{}, fmt.Errorf("gateway: read intent reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Intent{}, fmt.Errorf("gateway: create intent: unexpected status %d", resp.StatusCode)
	}
	var reply intentReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Intent{}, fmt.Errorf("gateway: decode intent reply: %w", err)
	}
	expires := req.ExpiresAt
	if reply.ExpiresAt > 0 {
		expires = time.Unix(reply.ExpiresAt, 0)
	}
	return Intent{
		Provider:    g.ProviderName,
		Token:       reply.Token,
		RedirectURL: reply.RedirectURL,
		ExpiresAt:   expires,
	}, nil
}

// VerifyCallback validates the X-Signature header and decodes the notification.
func (g *HTTPGateway) VerifyCallback(r *http.Request, body []byte) (Callback, error) {
	return VerifySigned(g.Secret, r, body)
}
