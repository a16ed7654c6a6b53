// Package pubsub adapts Google Cloud Pub/Sub v2 to the outbox transport
// contract used by the publisher and the payment-event worker.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Client wraps a Pub/Sub client bound to one project. Publisher handles are
// cached per topic so batching settings survive across outbox batches.
type Client struct {
	raw       *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails when a configured subscription is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := wrap(raw, projectID, cfg)
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "gcp_project", projectID), "pubsub client initialized")
	}
	return c, nil
}

func wrap(raw *pubsub.Client, projectID string, cfg config.PubSubConfig) *Client {
	return &Client{
		raw:        raw,
		projectID:  projectID,
		cfg:        cfg,
		publishers: map[string]*pubsub.Publisher{},
	}
}

// Ping checks that every configured subscription exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.raw == nil {
		return errors.New("pubsub client not initialized")
	}
	names := subscriptionNames(c.cfg)
	if len(names) == 0 {
		return errors.New("pubsub subscription name is required")
	}
	var errs error
	for _, name := range names {
		_, err := c.raw.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: c.resourceName(kindSubscription, name),
		})
		switch {
		case status.Code(err) == codes.NotFound:
			errs = multierr.Append(errs, fmt.Errorf("subscription %q does not exist", name))
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("checking subscription %q: %w", name, err))
		}
	}
	return errs
}

func subscriptionNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.PaymentCapturedSubscription, cfg.PaymentFailedSubscription} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// Subscription returns a receiver for a subscription ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	full := c.resourceName(kindSubscription, name)
	if full == "" || c.raw == nil {
		return nil
	}
	return c.raw.Subscriber(full)
}

func (c *Client) PaymentCapturedSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.PaymentCapturedSubscription)
}

func (c *Client) PaymentFailedSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.PaymentFailedSubscription)
}

// Publish implements outbox.Publisher and blocks until the server acks.
func (c *Client) Publish(ctx context.Context, topic string, msg outbox.Message) error {
	pub, err := c.publisher(topic)
	if err != nil {
		return err
	}
	_, err = pub.Publish(ctx, &pubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Attributes,
	}).Get(ctx)
	return err
}

func (c *Client) publisher(topic string) (*pubsub.Publisher, error) {
	full := c.resourceName(kindTopic, topic)
	if full == "" || c.raw == nil {
		return nil, fmt.Errorf("publisher not configured for topic %q", topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.publishers[full]
	if !ok {
		pub = c.raw.Publisher(full)
		c.publishers[full] = pub
	}
	return pub, nil
}

// Close flushes cached publishers and releases the client.
func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	c.mu.Lock()
	for _, pub := range c.publishers {
		pub.Stop()
	}
	c.publishers = map[string]*pubsub.Publisher{}
	c.mu.Unlock()
	return c.raw.Close()
}

// resourceName expands a bare ID into projects/<p>/<kind>/<id>. Names that
// are already fully qualified pass through.
func (c *Client) resourceName(kind resourceKind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+string(kind)+"/") {
		return n
	}
	if c.projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", c.projectID, kind, n)
}
