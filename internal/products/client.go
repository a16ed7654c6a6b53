package products

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/storefront-backend/pkg/circuitbreaker"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const responseBodyReadLimit int64 = 1024

// ErrProductNotFound is returned when the catalog answers 404.
var ErrProductNotFound = errors.New("product not found")

// Product is the live catalog view of a product.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	Images        []string        `json:"images"`
}

// PrimaryImage is the first image, if any.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Client is the narrow contract of the product collaborator.
type Client interface {
	Get(ctx context.Context, id int64) (*Product, error)
	Batch(ctx context.Context, ids []int64) ([]Product, error)
	ReduceStock(ctx context.Context, id int64, quantity int) error
}

type httpClient struct {
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// Option configures optional client behavior.
type Option func(*httpClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *httpClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Config holds the collaborator location and breaker tuning.
type Config struct {
	BaseURL             string
	Timeout             time.Duration
	BreakerFailures     uint32
	BreakerOpenDuration time.Duration
}

// NewClient builds the circuit-broken product service client.
func NewClient(cfg Config, logg *logger.Logger, opts ...Option) (Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("product service base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	c := &httpClient{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.breaker = circuitbreaker.New[[]byte](circuitbreaker.Settings{
		Name:                "product-service",
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerOpenDuration,
		Ignore:              func(err error) bool { return errors.Is(err, ErrProductNotFound) },
	}, logg)
	return c, nil
}

// Get fetches one product. A missing product yields ErrProductNotFound.
func (c *httpClient) Get(ctx context.Context, id int64) (*Product, error) {
	body, err := c.do(ctx, http.MethodGet, c.buildURL("products", strconv.FormatInt(id, 10)), nil)
	if err != nil {
		return nil, err
	}
	var product Product
	if err := json.Unmarshal(body, &product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode product response")
	}
	return &product, nil
}

// Batch fetches every known product among ids; unknown ids are simply absent.
func (c *httpClient) Batch(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal batch request")
	}
	body, err := c.do(ctx, http.MethodPost, c.buildURL("products", "batch"), payload)
	if err != nil {
		return nil, err
	}
	var out []Product
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode batch response")
	}
	return out, nil
}

// ReduceStock decrements stock for id by quantity.
func (c *httpClient) ReduceStock(ctx context.Context, id int64, quantity int) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	target := c.buildURL("products", strconv.FormatInt(id, 10), "stock", "reduce") +
		"?" + url.Values{"quantity": []string{strconv.Itoa(quantity)}}.Encode()
	_, err := c.do(ctx, http.MethodPatch, target, nil)
	return err
}

func (c *httpClient) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrProductNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, method+" product service failed")
	}
	return body, nil
}

func (c *httpClient) buildURL(parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, c.baseURL)
	for _, part := range parts {
		escaped = append(escaped, url.PathEscape(part))
	}
	return strings.Join(escaped, "/")
}
