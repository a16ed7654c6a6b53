package stripe

import (
	"errors"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// ErrInvalidSignature is returned when a webhook payload does not match
// its Stripe-Signature header.
var ErrInvalidSignature = errors.New("invalid stripe webhook signature")

// WebhookVerifier checks Stripe-Signature headers against the endpoint secret.
type WebhookVerifier struct {
	environment   string
	signingSecret string
	tolerance     time.Duration
}

// NewWebhookVerifier falls back to Stripe's default tolerance when
// tolerance is not positive.
func NewWebhookVerifier(secret, environment string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookVerifier{environment: environment, signingSecret: secret, tolerance: tolerance}
}

// Environment reports the normalized Stripe environment (test or live).
func (v *WebhookVerifier) Environment() string {
	if v == nil {
		return ""
	}
	return v.environment
}

func (v *WebhookVerifier) SigningSecret() string {
	if v == nil {
		return ""
	}
	return v.signingSecret
}

// ConstructEvent verifies the signature and decodes the event. API version
// mismatches are tolerated since handlers only read stable fields.
func (v *WebhookVerifier) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	if v == nil || v.signingSecret == "" {
		return stripe.Event{}, errSecretRequired
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.signingSecret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, errors.Join(ErrInvalidSignature, err)
	}
	return event, nil
}
