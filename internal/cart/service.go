package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/products"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type productSource interface {
	Get(ctx context.Context, id int64) (*products.Product, error)
	Batch(ctx context.Context, ids []int64) ([]products.Product, error)
}

type promoLookup interface {
	Lookup(ctx context.Context, code string) (*pricing.Promotion, error)
}

// Service exposes cart operations for one user's cart.
type Service interface {
	Get(ctx context.Context, userID string) (*pricing.Cart, error)
	AddItem(ctx context.Context, userID string, productID int64, quantity int) (*pricing.Cart, error)
	UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) (*pricing.Cart, error)
	RemoveItem(ctx context.Context, userID string, productID int64) (*pricing.Cart, error)
	ApplyPromo(ctx context.Context, userID, code string) (*pricing.Cart, error)
	RemovePromo(ctx context.Context, userID string) (*pricing.Cart, error)
	Clear(ctx context.Context, userID string) error
}

type service struct {
	store      Store
	products   productSource
	promos     promoLookup
	reconciler *Reconciler
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the cart service.
func NewService(store Store, productClient productSource, promos promoLookup, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if productClient == nil {
		return nil, fmt.Errorf("product client required")
	}
	if promos == nil {
		return nil, fmt.Errorf("promo lookup required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		store:      store,
		products:   productClient,
		promos:     promos,
		reconciler: NewReconciler(productClient, logg),
		logg:       logg,
		now:        time.Now,
	}, nil
}

// Get returns the user's cart, creating it on first read and reconciling it
// against the catalog. The cart is only rewritten when reconciliation changed it.
func (s *service) Get(ctx context.Context, userID string) (*pricing.Cart, error) {
	ctx = s.logg.WithUserID(ctx, userID)
	current, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current.Version == 0 {
		return s.save(ctx, *current)
	}

	refreshed, changed, err := s.reconciler.Reconcile(ctx, *current)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart reconciliation skipped")
		return current, nil
	}
	if !changed {
		return current, nil
	}
	return s.save(ctx, refreshed.Touch(s.now()))
}

func (s *service) AddItem(ctx context.Context, userID string, productID int64, quantity int) (*pricing.Cart, error) {
	if quantity <= 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, pricing.ErrInvalidQuantity, pricing.ErrInvalidQuantity.Error())
	}
	ctx = s.logg.WithUserID(ctx, userID)
	current, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	requested := quantity
	if existing, ok := current.Find(productID); ok {
		requested += existing.Quantity
	}
	if product.StockQuantity < requested {
		return nil, insufficientStock(product.StockQuantity)
	}

	next, err := pricing.AddItem(*current, pricing.Item{
		ProductID:   product.ID,
		ProductName: product.Name,
		Price:       product.Price,
		Quantity:    quantity,
		ImageURL:    product.PrimaryImage(),
		Images:      append([]string(nil), product.Images...),
	})
	if err != nil {
		return nil, mapPricingError(err)
	}
	return s.save(ctx, next.Touch(s.now()))
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
func (s *service) UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) (*pricing.Cart, error) {
	ctx = s.logg.WithUserID(ctx, userID)
	current, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := current.Find(productID); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found in cart")
	}

	if quantity > 0 {
		product, err := s.products.Get(ctx, productID)
		if err != nil {
			return nil, err
		}
		if product.StockQuantity < quantity {
			return nil, insufficientStock(product.StockQuantity)
		}
	}
	return s.save(ctx, pricing.UpdateQuantity(*current, productID, quantity).Touch(s.now()))
}

func (s *service) RemoveItem(ctx context.Context, userID string, productID int64) (*pricing.Cart, error) {
	ctx = s.logg.WithUserID(ctx, userID)
	current, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, pricing.RemoveItem(*current, productID).Touch(s.now()))
}

func (s *service) ApplyPromo(ctx context.Context, userID, code string) (*pricing.Cart, error) {
	ctx = s.logg.WithUserID(ctx, userID)
	current, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	promo, err := s.promos.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	next, err := pricing.ApplyPromotion(*current, promo, s.now())
	if err != nil {
		return nil, mapPricingError(err)
	}
	s.logg.Info(s.logg.WithField(ctx, "promo_code", next.Promo.Code), "promo code applied")
	return s.save(ctx, next.Touch(s.now()))
}

func (s *service) RemovePromo(ctx context.Context, userID string) (*pricing.Cart, error) {
	ctx = s.logg.WithUserID(ctx, userID)
	current, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, pricing.RemovePromotion(*current).Touch(s.now()))
}

// Clear deletes the stored cart; the next read starts a fresh one.
func (s *service) Clear(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *service) load(ctx context.Context, userID string) (*pricing.Cart, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	current, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if current == nil {
		fresh := pricing.NewCart(userID, s.now())
		return &fresh, nil
	}
	return current, nil
}

func (s *service) save(ctx context.Context, c pricing.Cart) (*pricing.Cart, error) {
	stored, err := s.store.Save(ctx, c)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return &stored, nil
}

func insufficientStock(available int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("insufficient stock, available: %d", available)).
		WithDetails(map[string]int{"available": available})
}

func mapPricingError(err error) error {
	var minErr *pricing.MinimumNotMetError
	switch {
	case errors.As(err, &minErr):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "minimum order amount of "+minErr.Required.StringFixed(2)+" required").
			WithDetails(map[string]string{"minAmount": minErr.Required.StringFixed(2), "subtotal": minErr.Subtotal.StringFixed(2)})
	case errors.Is(err, pricing.ErrInvalidPromotion), errors.Is(err, pricing.ErrInvalidQuantity):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "price cart")
	}
}
