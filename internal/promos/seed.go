package promos

import (
	"context"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

// Seed installs the launch codes when the store is empty and reports how many
// were created.
func (s *service) Seed(ctx context.Context) (int, error) {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promo codes")
	}
	if len(existing) > 0 {
		return 0, nil
	}

	expiresAt := s.now().AddDate(0, 1, 0)
	seeds := []CreateInput{
		{
			Code:            "WELCOME10",
			Description:     "New customer 10% discount",
			DiscountPercent: decimal.NewFromInt(10),
			MinAmount:       ptr(decimal.NewFromInt(50)),
			MaxDiscount:     ptr(decimal.NewFromInt(100)),
			ExpiresAt:       expiresAt,
		},
		{
			Code:            "SAVE20",
			Description:     "Save 20% on orders over $100",
			DiscountPercent: decimal.NewFromInt(20),
			MinAmount:       ptr(decimal.NewFromInt(100)),
			MaxDiscount:     ptr(decimal.NewFromInt(200)),
			ExpiresAt:       expiresAt,
		},
		{
			Code:            "VIP50",
			Description:     "VIP 50% discount",
			DiscountPercent: decimal.NewFromInt(50),
			MinAmount:       ptr(decimal.NewFromInt(500)),
			ExpiresAt:       expiresAt,
		},
	}

	for _, seed := range seeds {
		if _, err := s.Create(ctx, seed); err != nil {
			return 0, err
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "count", len(seeds)), "seeded promo codes")
	return len(seeds), nil
}
