package stripe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

const testPayload = `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded"}}}`

func TestNewClientValidatesKeys(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, config.StripeConfig{Secret: "whsec"}, nil)
	assert.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1"}, nil)
	assert.ErrorIs(t, err, errSecretRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_live_1", Secret: "whsec", Env: "test"}, nil)
	assert.Error(t, err)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec", Env: "staging"}, nil)
	assert.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec", Env: "TEST"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test", client.Environment())
	assert.Equal(t, "whsec", client.SigningSecret())
	assert.NotNil(t, client.API())

	live, err := NewClient(ctx, config.StripeConfig{APIKey: "rk_live_1", Secret: "whsec", Env: "live"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "live", live.Environment())
}

func TestFromAPIHasNoSecret(t *testing.T) {
	client := FromAPI(nil, "test")
	_, err := client.ConstructEvent([]byte(testPayload), "t=1,v1=abc")
	assert.ErrorIs(t, err, errSecretRequired)
}

func TestConstructEventVerifiesSignature(t *testing.T) {
	client := NewWebhookVerifier("whsec_test", "test", 0)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(testPayload),
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	event, err := client.ConstructEvent(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "payment_intent.succeeded", string(event.Type))
}

func TestConstructEventRejectsBadSignature(t *testing.T) {
	client := NewWebhookVerifier("whsec_test", "test", 0)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(testPayload),
		Secret:    "whsec_other",
		Timestamp: time.Now(),
	})

	_, err := client.ConstructEvent(signed.Payload, signed.Header)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignature))

	_, err = client.ConstructEvent([]byte(testPayload), "")
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}
