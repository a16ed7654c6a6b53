package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is one line of a cart. Name and price are snapshots of the catalog.
type Item struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Images      []string        `json:"images,omitempty"`
}

// LineTotal is price × quantity, unrounded.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// PromoSnapshot holds the promotion terms copied onto a cart at apply time.
type PromoSnapshot struct {
	Code            string           `json:"code"`
	DiscountPercent decimal.Decimal  `json:"discountPercent"`
	MinAmount       *decimal.Decimal `json:"minAmount,omitempty"`
	MaxDiscount     *decimal.Decimal `json:"maxDiscount,omitempty"`
}

// Totals is the output of Recompute.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Cart is an immutable value: every mutator below returns a new Cart and
// leaves its receiver untouched.
type Cart struct {
	UserID    string         `json:"userId"`
	Items     []Item         `json:"items"`
	Promo     *PromoSnapshot `json:"promo,omitempty"`
	Totals                   // subtotal, discount, total
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// NewCart returns an empty cart for userID.
func NewCart(userID string, now time.Time) Cart {
	return Cart{
		UserID:    userID,
		Items:     []Item{},
		Totals:    Recompute(nil, nil),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsEmpty reports whether the cart has no line items.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Find returns the line for productID.
func (c Cart) Find(productID int64) (Item, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return Item{}, false
}

// ItemCount is the sum of quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c Cart) clone() Cart {
	out := c
	out.Items = make([]Item, len(c.Items))
	for i, item := range c.Items {
		out.Items[i] = item
		if item.Images != nil {
			out.Items[i].Images = append([]string(nil), item.Images...)
		}
	}
	if c.Promo != nil {
		promo := *c.Promo
		out.Promo = &promo
	}
	return out
}

// WithItems replaces the line items and recomputes totals.
func (c Cart) WithItems(items []Item) Cart {
	out := c.clone()
	out.Items = append([]Item{}, items...)
	out.Totals = Recompute(out.Items, out.Promo)
	return out
}

// Touch stamps UpdatedAt.
func (c Cart) Touch(now time.Time) Cart {
	out := c.clone()
	out.UpdatedAt = now
	return out
}
