// Package stripe owns the Stripe API client and webhook signature checks.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client pairs a Stripe API client with the webhook verifier for the same
// account.
type Client struct {
	*WebhookVerifier
	api *stripe.Client
}

// NewClient refuses a live key in test mode and vice versa.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if !keyMatchesEnv(env, apiKey) {
		return nil, fmt.Errorf("stripe environment %q requires a %s secret key (sk_%s/rk_%s)", env, env, env, env)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client initialized")
	}
	return &Client{
		WebhookVerifier: NewWebhookVerifier(secret, env, cfg.WebhookTolerance),
		api:             stripe.NewClient(apiKey),
	}, nil
}

// FromAPI wraps an already configured API client, e.g. one pointed at a
// stub backend.
func FromAPI(api *stripe.Client, environment string) *Client {
	return &Client{
		WebhookVerifier: &WebhookVerifier{environment: environment},
		api:             api,
	}
}

// API returns the underlying Stripe client, or nil for verifier-only use.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

func normalizeEnv(raw string) (string, error) {
	switch env := strings.ToLower(strings.TrimSpace(raw)); env {
	case "", testEnv:
		return testEnv, nil
	case liveEnv:
		return liveEnv, nil
	default:
		return "", errInvalidStripeEnv
	}
}

// keyMatchesEnv accepts secret (sk_) and restricted (rk_) keys.
func keyMatchesEnv(env, key string) bool {
	for _, prefix := range []string{"sk_" + env, "rk_" + env} {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
