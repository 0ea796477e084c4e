// Package gateway holds the contract with the upstream payment gateway: intent
// creation for card checkouts and verification of the signed callbacks it sends
// back once the shopper completes or abandons the payment.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidSignature is returned when the callback signature does not match the body.
	ErrInvalidSignature = errors.New("gateway: invalid callback signature")
	// ErrMalformedCallback is returned when a correctly signed body cannot be decoded.
	ErrMalformedCallback = errors.New("gateway: malformed callback payload")
)

// IntentRequest captures the information required to open a payment intent with a provider.
type IntentRequest struct {
	OrderID       uuid.UUID
	CorrelationID string
	BasketID      string
	Amount        int64
	Currency      string
	CallbackURL   string
	ExpiresAt     time.Time
}

// Intent is the provider's answer to an intent request.
type Intent struct {
	Provider    string    `json:"provider"`
	Token       string    `json:"token,omitempty"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Callback is the normalised result of a verified gateway notification.
type Callback struct {
	Success       bool   `json:"success"`
	PaymentID     string `json:"paymentId"`
	CorrelationID string `json:"conversationId"`
	BasketID      string `json:"basketId"`
	ErrorCode     string `json:"errorCode,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	VerifyCallback(r *http.Request, body []byte) (Callback, error)
}
