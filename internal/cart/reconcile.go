package cart

import (
	"context"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type productBatcher interface {
	Batch(ctx context.Context, ids []int64) ([]products.Product, error)
}

// Reconciler refreshes cart lines against the live catalog.
type Reconciler struct {
	products productBatcher
	logg     *logger.Logger
}

// NewReconciler builds a catalog reconciler.
func NewReconciler(p productBatcher, logg *logger.Logger) *Reconciler {
	return &Reconciler{products: p, logg: logg}
}

// Reconcile returns the refreshed cart and whether anything changed. Items are
// visited in cart order: missing products are dropped, name and price drift is
// copied onto the snapshot, and quantities above available stock are clamped
// (or dropped when stock is zero). The input cart is not modified.
func (r *Reconciler) Reconcile(ctx context.Context, c pricing.Cart) (pricing.Cart, bool, error) {
	if c.IsEmpty() {
		return c, false, nil
	}

	ids := make([]int64, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	live, err := r.products.Batch(ctx, ids)
	if err != nil {
		return c, false, err
	}
	byID := make(map[int64]products.Product, len(live))
	for _, p := range live {
		byID[p.ID] = p
	}

	changed := false
	items := make([]pricing.Item, 0, len(c.Items))
	for _, item := range c.Items {
		itemCtx := r.logg.WithField(ctx, "product_id", item.ProductID)

		product, ok := byID[item.ProductID]
		if !ok {
			r.logg.Info(itemCtx, "cart item removed: product no longer exists")
			changed = true
			continue
		}

		if product.Name != item.ProductName || !product.Price.Equal(item.Price) {
			r.logg.Info(r.logg.WithFields(itemCtx, map[string]any{
				"old_price": item.Price.String(),
				"new_price": product.Price.String(),
			}), "cart item snapshot refreshed")
			item.ProductName = product.Name
			item.Price = product.Price
			item.ImageURL = product.PrimaryImage()
			item.Images = append([]string(nil), product.Images...)
			changed = true
		}

		if product.StockQuantity < item.Quantity {
			if product.StockQuantity <= 0 {
				r.logg.Info(itemCtx, "cart item removed: out of stock")
				changed = true
				continue
			}
			r.logg.Info(r.logg.WithField(itemCtx, "available", product.StockQuantity), "cart item quantity clamped to stock")
			item.Quantity = product.StockQuantity
			changed = true
		}

		items = append(items, item)
	}

	if !changed {
		return c, false, nil
	}
	return c.WithItems(items), true, nil
}
