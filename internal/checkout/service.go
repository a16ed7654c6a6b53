package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

const (
	variantCart   = "cart"
	variantDirect = "direct"
)

type productLookup interface {
	Get(ctx context.Context, id int64) (*products.Product, error)
}

type cartSource interface {
	Get(ctx context.Context, userID string) (*pricing.Cart, error)
	Clear(ctx context.Context, userID string) error
}

type orderCreator interface {
	Create(ctx context.Context, input orders.CreateOrderInput) (*models.Order, error)
}

type stockCommitter interface {
	Commit(ctx context.Context, order *models.Order) (CommitResult, error)
}

// CartInput checks out the caller's whole cart.
type CartInput struct {
	ShippingAddress string `json:"shippingAddress" validate:"required"`
	PaymentMethod   string `json:"paymentMethod" validate:"required"`
}

// DirectInput buys a single product without touching the cart.
type DirectInput struct {
	ProductID       int64  `json:"productId" validate:"required"`
	Quantity        int    `json:"quantity" validate:"required,gt=0"`
	ShippingAddress string `json:"shippingAddress" validate:"required"`
	PaymentMethod   string `json:"paymentMethod" validate:"required"`
}

// Result is returned on success, even when some stock commits failed.
type Result struct {
	Success bool            `json:"success"`
	Order   orders.OrderDTO `json:"order"`
}

// Service executes checkout orchestration.
type Service interface {
	CheckoutCart(ctx context.Context, userID string, input CartInput) (*Result, error)
	CheckoutDirect(ctx context.Context, userID string, input DirectInput) (*Result, error)
}

type service struct {
	products productLookup
	carts    cartSource
	orders   orderCreator
	stock    stockCommitter
	logg     *logger.Logger
	metrics  *metrics.CheckoutMetrics
}

// NewService builds the checkout service.
func NewService(
	productClient productLookup,
	carts cartSource,
	orderSvc orderCreator,
	stock stockCommitter,
	logg *logger.Logger,
	m *metrics.CheckoutMetrics,
) (Service, error) {
	if productClient == nil {
		return nil, fmt.Errorf("product client required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock committer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		products: productClient,
		carts:    carts,
		orders:   orderSvc,
		stock:    stock,
		logg:     logg,
		metrics:  m,
	}, nil
}

func (s *service) CheckoutCart(ctx context.Context, userID string, input CartInput) (res *Result, err error) {
	defer func() { s.metrics.IncRequest(variantCart, outcomeOf(err)) }()

	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if err := validateShipping(input.ShippingAddress, input.PaymentMethod); err != nil {
		return nil, err
	}
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	items := make([]orders.ItemInput, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, orders.ItemInput{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			ImageURLs:   imagesOf(it),
		})
	}
	if err := s.validateStock(ctx, items); err != nil {
		return nil, err
	}

	var promoCode *string
	if c.Promo != nil {
		code := c.Promo.Code
		promoCode = &code
	}
	order, err := s.orders.Create(ctx, orders.CreateOrderInput{
		UserID:          userID,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		PromoCode:       promoCode,
		DiscountAmount:  c.Discount,
		TotalAmount:     c.Total,
		Items:           items,
	})
	if err != nil {
		return nil, err
	}

	s.commitStock(ctx, order)

	if err := s.carts.Clear(ctx, userID); err != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), fmt.Sprintf("cart clear after checkout failed: %v", err))
	}
	return &Result{Success: true, Order: orders.ToDTO(*order)}, nil
}

func (s *service) CheckoutDirect(ctx context.Context, userID string, input DirectInput) (res *Result, err error) {
	defer func() { s.metrics.IncRequest(variantDirect, outcomeOf(err)) }()

	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if input.ProductID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required").
			WithDetails(map[string]any{"productId": "required"})
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
			WithDetails(map[string]any{"quantity": "must be greater than 0"})
	}
	if err := validateShipping(input.ShippingAddress, input.PaymentMethod); err != nil {
		return nil, err
	}

	product, err := s.products.Get(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if err := ValidateStock([]StockCheck{{
		ProductID:   product.ID,
		ProductName: product.Name,
		Requested:   input.Quantity,
		Available:   product.StockQuantity,
	}}); err != nil {
		return nil, err
	}

	total := money.Round(product.Price.Mul(decimal.NewFromInt(int64(input.Quantity))))
	order, err := s.orders.Create(ctx, orders.CreateOrderInput{
		UserID:          userID,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		DiscountAmount:  decimal.Zero,
		TotalAmount:     total,
		Items: []orders.ItemInput{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    input.Quantity,
			Price:       product.Price,
			ImageURLs:   product.Images,
		}},
	})
	if err != nil {
		return nil, err
	}

	s.commitStock(ctx, order)
	return &Result{Success: true, Order: orders.ToDTO(*order)}, nil
}

// validateStock is advisory: nothing is reserved between this read and the
// later stock commit.
func (s *service) validateStock(ctx context.Context, items []orders.ItemInput) error {
	checks := make([]StockCheck, 0, len(items))
	for _, it := range items {
		product, err := s.products.Get(ctx, it.ProductID)
		if err != nil {
			return err
		}
		checks = append(checks, StockCheck{
			ProductID:   it.ProductID,
			ProductName: product.Name,
			Requested:   it.Quantity,
			Available:   product.StockQuantity,
		})
		if err := ValidateStock(checks[len(checks)-1:]); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) commitStock(ctx context.Context, order *models.Order) {
	result, err := s.stock.Commit(ctx, order)
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	if err != nil {
		s.logg.Error(logCtx, "persist stock commit progress", err)
	}
	if result.Failed > 0 {
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"committed": result.Committed,
			"failed":    result.Failed,
		}), "checkout completed with uncommitted stock")
	}
}

func imagesOf(it pricing.Item) []string {
	if len(it.Images) > 0 {
		return it.Images
	}
	if it.ImageURL != "" {
		return []string{it.ImageURL}
	}
	return nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation:
		return "rejected"
	case pkgerrors.CodeNotFound:
		return "not_found"
	case pkgerrors.CodeDependency:
		return "dependency"
	default:
		return "error"
	}
}
