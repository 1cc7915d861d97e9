package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/port"
)

func newStripeTestGateway(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripeGateway("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
}

func TestStripe_CreateChargeIntent(t *testing.T) {
	var form string
	g := newStripeTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.Form.Encode()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret","status":"requires_payment_method","amount":100000,"currency":"inr"}`))
	})

	intent, err := g.CreateChargeIntent(context.Background(), domain.ChargeRequest{
		AmountMinor: 100000,
		Currency:    "inr",
		PayerEmail:  "buyer@example.com",
		Metadata:    map[string]string{"eventId": "evt-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret", intent.ClientSecret)
	assert.Equal(t, domain.IntentRequiresPaymentMethod, intent.Status)
	assert.Equal(t, int64(100000), intent.AmountMinor)

	assert.Contains(t, form, "amount=100000")
	assert.Contains(t, form, "metadata%5BeventId%5D=evt-1")
}

func TestStripe_RetrieveChargeIntent(t *testing.T) {
	g := newStripeTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_9", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_9","object":"payment_intent","status":"succeeded","amount":5000,"currency":"inr"}`))
	})

	intent, err := g.RetrieveChargeIntent(context.Background(), "pi_9")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentSucceeded, intent.Status)
	assert.Equal(t, int64(5000), intent.AmountMinor)
}

func TestStripe_Refund(t *testing.T) {
	g := newStripeTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.Equal(t, "refund-pi_9", r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"re_1","object":"refund","status":"succeeded","amount":5000}`))
	})

	res, err := g.Refund(context.Background(), "pi_9")
	require.NoError(t, err)
	assert.Equal(t, "re_1", res.ID)
	assert.Equal(t, domain.RefundSucceeded, res.Status)
}

func TestStripe_ErrorWrapsGatewayError(t *testing.T) {
	g := newStripeTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such payment_intent"}}`))
	})

	_, err := g.RetrieveChargeIntent(context.Background(), "pi_missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrGateway)
	assert.True(t, strings.Contains(err.Error(), "No such payment_intent"))
}
