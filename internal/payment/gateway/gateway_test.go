package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/payment/gateway"
)

func signedRequest(t *testing.T, secret string, body []byte) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment/sandbox", strings.NewReader(string(body)))
	r.Header.Set(gateway.SignatureHeader, gateway.Sign(secret, body))
	return r
}

func TestVerifySignedDecodesCallback(t *testing.T) {
	body := []byte(`{"success":true,"paymentId":" pay-1 ","conversationId":"CONV-x","basketId":"BSK-1"}`)
	cb, err := gateway.VerifySigned("s3cret", signedRequest(t, "s3cret", body), body)
	require.NoError(t, err)
	require.True(t, cb.Success)
	require.Equal(t, "pay-1", cb.PaymentID)
	require.Equal(t, "CONV-x", cb.CorrelationID)
	require.Equal(t, "BSK-1", cb.BasketID)
}

func TestVerifySignedRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"success":true,"paymentId":"pay-1"}`)
	r := signedRequest(t, "s3cret", body)
	_, err := gateway.VerifySigned("s3cret", r, []byte(`{"success":true,"paymentId":"pay-2"}`))
	require.ErrorIs(t, err, gateway.ErrInvalidSignature)

	_, err = gateway.VerifySigned("", r, body)
	require.ErrorIs(t, err, gateway.ErrInvalidSignature)
}

func TestVerifySignedRejectsCallbackWithoutIdentifiers(t *testing.T) {
	body := []byte(`{"success":false,"errorCode":"5001"}`)
	_, err := gateway.VerifySigned("s3cret", signedRequest(t, "s3cret", body), body)
	require.ErrorIs(t, err, gateway.ErrMalformedCallback)

	body = []byte(`not json`)
	_, err = gateway.VerifySigned("s3cret", signedRequest(t, "s3cret", body), body)
	require.ErrorIs(t, err, gateway.ErrMalformedCallback)
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	id := uuid.New()
	conv := gateway.CorrelationID(id, time.Unix(1700000000, 0))
	require.Equal(t, "CONV-"+id.String()+"-1700000000", conv)

	parsed, ok := gateway.ParseCorrelationID(conv)
	require.True(t, ok)
	require.Equal(t, id, parsed)
}

func TestParseCorrelationIDRejectsMalformed(t *testing.T) {
	id := uuid.NewString()
	cases := []string{
		"",
		"CONV-",
		id,
		"CONV-" + id,
		"CONV-" + id + "-",
		"CONV-" + id + "-abc",
		"CONV-not-a-uuid-at-all-but-long-enough-xx-123",
		"conv-" + id + "-123",
	}
	for _, c := range cases {
		_, ok := gateway.ParseCorrelationID(c)
		require.False(t, ok, c)
	}
}

func TestHTTPGatewayCreateIntent(t *testing.T) {
	orderID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment-intents", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, gateway.Sign("s3cret", body), r.Header.Get(gateway.SignatureHeader))
		require.Equal(t, "BSK-1", r.Header.Get("Idempotency-Key"))

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Equal(t, orderID.String(), payload["orderId"])
		require.EqualValues(t, 86000, payload["amount"])

		_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok-1", "redirectUrl": "https://pay.example/tok-1"})
	}))
	t.Cleanup(srv.Close)

	gw := gateway.NewHTTPGateway("hosted", srv.URL, "s3cret", time.Second)
	expires := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	intent, err := gw.CreateIntent(context.Background(), gateway.IntentRequest{
		OrderID:       orderID,
		CorrelationID: gateway.CorrelationID(orderID, time.Now()),
		BasketID:      "BSK-1",
		Amount:        86000,
		Currency:      "IDR",
		ExpiresAt:     expires,
	})
	require.NoError(t, err)
	require.Equal(t, "hosted", intent.Provider)
	require.Equal(t, "tok-1", intent.Token)
	require.Equal(t, "https://pay.example/tok-1", intent.RedirectURL)
	require.True(t, intent.ExpiresAt.Equal(expires))
}

func TestHTTPGatewayCreateIntentRejectedByProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	gw := gateway.NewHTTPGateway("hosted", srv.URL, "s3cret", time.Second)
	_, err := gw.CreateIntent(context.Background(), gateway.IntentRequest{OrderID: uuid.New(), BasketID: "BSK-1"})
	require.Error(t, err)
}

func TestSandboxIntentIsDeterministic(t *testing.T) {
	sb := gateway.Sandbox{Secret: "s", BaseURL: "https://sbx.test/"}
	intent, err := sb.CreateIntent(context.Background(), gateway.IntentRequest{BasketID: "BSK-9"})
	require.NoError(t, err)
	require.Equal(t, "sbx-BSK-9", intent.Token)
	require.Equal(t, "https://sbx.test/pay/sbx-BSK-9", intent.RedirectURL)

	_, err = sb.CreateIntent(context.Background(), gateway.IntentRequest{})
	require.Error(t, err)
}
