package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Signature"

// Sign computes the signature for body. An empty secret yields an empty signature.
func Sign(secret string, body []byte) string {
	key := strings.TrimSpace(secret)
	if key == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySigned checks the signature header of r against body and decodes the callback.
func VerifySigned(secret string, r *http.Request, body []byte) (Callback, error) {
	expected := Sign(secret, body)
	provided := strings.ToLower(strings.TrimSpace(r.Header.Get(SignatureHeader)))
	if expected == "" || provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return Callback{}, ErrInvalidSignature
	}
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	cb.PaymentID = strings.TrimSpace(cb.PaymentID)
	cb.CorrelationID = strings.TrimSpace(cb.CorrelationID)
	cb.BasketID = strings.TrimSpace(cb.BasketID)
	if cb.PaymentID == "" && cb.CorrelationID == "" && cb.BasketID == "" {
		return Callback{}, fmt.Errorf("%w: no payment identifiers", ErrMalformedCallback)
	}
	return cb, nil
}
