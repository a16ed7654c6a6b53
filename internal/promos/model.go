package promos

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
)

// PromoCode is the stored promotion. Code is always upper case.
type PromoCode struct {
	Code            string           `json:"code"`
	Description     string           `json:"description,omitempty"`
	DiscountPercent decimal.Decimal  `json:"discountPercent"`
	MinAmount       *decimal.Decimal `json:"minAmount,omitempty"`
	MaxDiscount     *decimal.Decimal `json:"maxDiscount,omitempty"`
	Active          bool             `json:"active"`
	ExpiresAt       time.Time        `json:"expiresAt"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// IsValid is active && now < expiresAt.
func (p PromoCode) IsValid(now time.Time) bool {
	return p.Promotion().IsValid(now)
}

// Promotion exposes the pricing view of the code.
func (p PromoCode) Promotion() pricing.Promotion {
	return pricing.Promotion{
		Code:            p.Code,
		DiscountPercent: p.DiscountPercent,
		MinAmount:       p.MinAmount,
		MaxDiscount:     p.MaxDiscount,
		Active:          p.Active,
		ExpiresAt:       p.ExpiresAt,
	}
}

// TTL is the remaining lifetime; stored codes disappear when they expire.
func (p PromoCode) TTL(now time.Time) time.Duration {
	return p.ExpiresAt.Sub(now)
}

// NormalizeCode upper-cases and trims a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
