package pricing

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/money"
)

var (
	// ErrInvalidPromotion covers unknown, inactive and expired codes.
	ErrInvalidPromotion = errors.New("invalid or expired promo code")
	// ErrMinimumNotMet is returned when the subtotal is below the code's minimum at apply time.
	ErrMinimumNotMet = errors.New("minimum order amount not met")
	// ErrInvalidQuantity rejects non-positive quantities on add.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
)

var hundred = decimal.NewFromInt(100)

// Promotion is a promo code as read from the promo store.
type Promotion struct {
	Code            string
	DiscountPercent decimal.Decimal
	MinAmount       *decimal.Decimal
	MaxDiscount     *decimal.Decimal
	Active          bool
	ExpiresAt       time.Time
}

// IsValid is active && now < expiresAt.
func (p Promotion) IsValid(now time.Time) bool {
	return p.Active && now.Before(p.ExpiresAt)
}

// Snapshot copies the terms that later recomputation depends on.
func (p Promotion) Snapshot() PromoSnapshot {
	snap := PromoSnapshot{
		Code:            strings.ToUpper(p.Code),
		DiscountPercent: p.DiscountPercent,
	}
	if p.MinAmount != nil {
		v := *p.MinAmount
		snap.MinAmount = &v
	}
	if p.MaxDiscount != nil {
		v := *p.MaxDiscount
		snap.MaxDiscount = &v
	}
	return snap
}

// Recompute derives subtotal, discount and total from items and an optional
// promo snapshot. It has no side effects, so repeated calls agree.
func Recompute(items []Item, promo *PromoSnapshot) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = money.Round(subtotal)

	discount := decimal.Zero
	if promo != nil && meetsMinimum(subtotal, promo.MinAmount) {
		discount = money.Round(subtotal.Mul(promo.DiscountPercent).Div(hundred))
		if promo.MaxDiscount != nil {
			discount = money.Min(discount, money.Round(*promo.MaxDiscount))
		}
	}

	total := money.Max(decimal.Zero, subtotal.Sub(discount))
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Total:    money.Round(total),
	}
}

func meetsMinimum(subtotal decimal.Decimal, minAmount *decimal.Decimal) bool {
	return minAmount == nil || subtotal.GreaterThanOrEqual(*minAmount)
}

// AddItem appends item, merging quantities when the product is already in the
// cart. The newer name and price snapshot wins on merge.
func AddItem(c Cart, item Item) (Cart, error) {
	if item.Quantity <= 0 {
		return c, ErrInvalidQuantity
	}
	items := make([]Item, 0, len(c.Items)+1)
	merged := false
	for _, existing := range c.Items {
		if existing.ProductID == item.ProductID {
			existing.Quantity += item.Quantity
			existing.ProductName = item.ProductName
			existing.Price = item.Price
			existing.ImageURL = item.ImageURL
			existing.Images = item.Images
			merged = true
		}
		items = append(items, existing)
	}
	if !merged {
		items = append(items, item)
	}
	return c.WithItems(items), nil
}

// UpdateQuantity sets the quantity of productID; zero or less removes the line.
// Unknown products leave the cart unchanged.
func UpdateQuantity(c Cart, productID int64, quantity int) Cart {
	if quantity <= 0 {
		return RemoveItem(c, productID)
	}
	items := make([]Item, 0, len(c.Items))
	for _, existing := range c.Items {
		if existing.ProductID == productID {
			existing.Quantity = quantity
		}
		items = append(items, existing)
	}
	return c.WithItems(items)
}

// RemoveItem drops productID from the cart.
func RemoveItem(c Cart, productID int64) Cart {
	items := make([]Item, 0, len(c.Items))
	for _, existing := range c.Items {
		if existing.ProductID != productID {
			items = append(items, existing)
		}
	}
	return c.WithItems(items)
}

// ApplyPromotion snapshots promo onto the cart. A nil promo means the code was
// not found.
func ApplyPromotion(c Cart, promo *Promotion, now time.Time) (Cart, error) {
	if promo == nil || !promo.IsValid(now) {
		return c, ErrInvalidPromotion
	}
	subtotal := Recompute(c.Items, nil).Subtotal
	if !meetsMinimum(subtotal, promo.MinAmount) {
		return c, &MinimumNotMetError{Required: *promo.MinAmount, Subtotal: subtotal}
	}
	out := c.clone()
	snap := promo.Snapshot()
	out.Promo = &snap
	out.Totals = Recompute(out.Items, out.Promo)
	return out, nil
}

// RemovePromotion clears the snapshot and recomputes.
func RemovePromotion(c Cart) Cart {
	out := c.clone()
	out.Promo = nil
	out.Totals = Recompute(out.Items, nil)
	return out
}

// Clear empties the cart, dropping any promotion.
func Clear(c Cart) Cart {
	out := c.clone()
	out.Items = []Item{}
	out.Promo = nil
	out.Totals = Recompute(nil, nil)
	return out
}

// MinimumNotMetError carries the amounts for the client message.
type MinimumNotMetError struct {
	Required decimal.Decimal
	Subtotal decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return "minimum amount required: " + e.Required.StringFixed(2)
}

func (e *MinimumNotMetError) Unwrap() error {
	return ErrMinimumNotMet
}
