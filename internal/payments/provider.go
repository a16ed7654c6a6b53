package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"

	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// ErrProviderError wraps every failure talking to the payment provider.
var ErrProviderError = errors.New("payment provider error")

const intentStatusSucceeded = "succeeded"

// Intent is the provider-side payment intent, reduced to what the state
// machine needs.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	LastError    string
}

// Succeeded reports whether the provider considers the intent paid.
func (i Intent) Succeeded() bool {
	return i.Status == intentStatusSucceeded
}

// CreateIntentParams describes a new intent. Amount is in minor units.
type CreateIntentParams struct {
	AmountMinor    int64
	Currency       string
	OrderID        string
	IdempotencyKey string
}

// Provider is the payment gateway port.
type Provider interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}

type stripeProvider struct {
	api *stripe.Client
}

// NewStripeProvider adapts Stripe PaymentIntents. It returns nil when the
// client has no API access.
func NewStripeProvider(client *pkgstripe.Client) Provider {
	api := client.API()
	if api == nil {
		return nil
	}
	return &stripeProvider{api: api}
}

func (p *stripeProvider) CreateIntent(ctx context.Context, in CreateIntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(in.AmountMinor),
		Currency: stripe.String(strings.ToLower(in.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("orderId", in.OrderID)
	params.SetIdempotencyKey(in.IdempotencyKey)

	pi, err := p.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}
	return intentFromStripe(pi), nil
}

func (p *stripeProvider) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	pi, err := p.api.V1PaymentIntents.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}
	return intentFromStripe(pi), nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return nil
	}
	out := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}
	if pi.LastPaymentError != nil {
		out.LastError = pi.LastPaymentError.Msg
	}
	return out
}
