package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

func stripeStub(t *testing.T, handler http.HandlerFunc) *pkgstripe.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return pkgstripe.FromAPI(stripe.NewClient("sk_test_provider", stripe.WithBackends(backends)), "test")
}

func TestStripeProviderCreateIntent(t *testing.T) {
	var (
		form    url.Values
		idemKey string
		path    string
	)
	client := stripeStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		idemKey = r.Header.Get("Idempotency-Key")
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret_abc","status":"requires_payment_method"}`))
	})

	provider := NewStripeProvider(client)
	intent, err := provider.CreateIntent(context.Background(), CreateIntentParams{
		AmountMinor:    2200,
		Currency:       "USD",
		OrderID:        "order-1",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/payment_intents", path)
	assert.Equal(t, "2200", form.Get("amount"))
	assert.Equal(t, "usd", form.Get("currency"))
	assert.Equal(t, "order-1", form.Get("metadata[orderId]"))
	assert.Equal(t, "true", form.Get("automatic_payment_methods[enabled]"))
	assert.Equal(t, "key-1", idemKey)

	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
	assert.False(t, intent.Succeeded())
}

func TestStripeProviderRetrieveIntent(t *testing.T) {
	client := stripeStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_9", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_9","object":"payment_intent","status":"succeeded"}`))
	})

	intent, err := NewStripeProvider(client).RetrieveIntent(context.Background(), "pi_9")
	require.NoError(t, err)
	assert.True(t, intent.Succeeded())
}

func TestStripeProviderWrapsErrors(t *testing.T) {
	client := stripeStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","message":"Your card was declined."}}`))
	})

	_, err := NewStripeProvider(client).CreateIntent(context.Background(), CreateIntentParams{
		AmountMinor: 100, Currency: "usd", OrderID: "o", IdempotencyKey: "k",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderError)
}

func TestStripeProviderRequiresAPI(t *testing.T) {
	assert.Nil(t, NewStripeProvider(nil))
	assert.Nil(t, NewStripeProvider(pkgstripe.FromAPI(nil, "test")))
}
