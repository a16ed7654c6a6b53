package promos

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var hundred = decimal.NewFromInt(100)

// Service manages promo codes for admins and resolves them for carts.
type Service interface {
	List(ctx context.Context) ([]PromoCode, error)
	ListActive(ctx context.Context) ([]PromoCode, error)
	Get(ctx context.Context, code string) (*PromoCode, error)
	Create(ctx context.Context, input CreateInput) (*PromoCode, error)
	Update(ctx context.Context, code string, input UpdateInput) (*PromoCode, error)
	Delete(ctx context.Context, code string) error
	Lookup(ctx context.Context, code string) (*pricing.Promotion, error)
	Validate(ctx context.Context, code string) (*PromoCode, error)
	Seed(ctx context.Context) (int, error)
}

// CreateInput is the admin payload for a new code.
type CreateInput struct {
	Code            string
	Description     string
	DiscountPercent decimal.Decimal
	ExpiresAt       time.Time
	MinAmount       *decimal.Decimal
	MaxDiscount     *decimal.Decimal
}

// UpdateInput applies only the non-nil fields.
type UpdateInput struct {
	Description     *string
	DiscountPercent *decimal.Decimal
	ExpiresAt       *time.Time
	MinAmount       *decimal.Decimal
	MaxDiscount     *decimal.Decimal
	Active          *bool
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// NewService wires the promo service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promo repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg, now: time.Now}, nil
}

func (s *service) List(ctx context.Context) ([]PromoCode, error) {
	codes, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promo codes")
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].Code < codes[j].Code })
	return codes, nil
}

func (s *service) ListActive(ctx context.Context) ([]PromoCode, error) {
	codes, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	active := make([]PromoCode, 0, len(codes))
	for _, code := range codes {
		if code.IsValid(now) {
			active = append(active, code)
		}
	}
	return active, nil
}

func (s *service) Get(ctx context.Context, code string) (*PromoCode, error) {
	promo, err := s.repo.Find(ctx, NormalizeCode(code))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promo code")
	}
	if promo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promo code not found")
	}
	return promo, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*PromoCode, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promo code is required")
	}
	now := s.now()
	if err := validateTerms(input.DiscountPercent, input.MinAmount, input.MaxDiscount, input.ExpiresAt, now); err != nil {
		return nil, err
	}

	existing, err := s.repo.Find(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promo code")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "promo code already exists: "+code)
	}

	promo := PromoCode{
		Code:            code,
		Description:     input.Description,
		DiscountPercent: input.DiscountPercent,
		MinAmount:       input.MinAmount,
		MaxDiscount:     input.MaxDiscount,
		Active:          true,
		ExpiresAt:       input.ExpiresAt.UTC(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Save(ctx, promo, promo.TTL(now)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save promo code")
	}

	s.logg.Info(s.logg.WithField(ctx, "promo_code", code), "promo code created")
	return &promo, nil
}

func (s *service) Update(ctx context.Context, code string, input UpdateInput) (*PromoCode, error) {
	promo, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	updated := *promo
	if input.Description != nil {
		updated.Description = *input.Description
	}
	if input.DiscountPercent != nil {
		updated.DiscountPercent = *input.DiscountPercent
	}
	if input.ExpiresAt != nil {
		updated.ExpiresAt = input.ExpiresAt.UTC()
	}
	if input.MinAmount != nil {
		updated.MinAmount = input.MinAmount
	}
	if input.MaxDiscount != nil {
		updated.MaxDiscount = input.MaxDiscount
	}
	if input.Active != nil {
		updated.Active = *input.Active
	}

	now := s.now()
	if err := validateTerms(updated.DiscountPercent, updated.MinAmount, updated.MaxDiscount, updated.ExpiresAt, now); err != nil {
		return nil, err
	}
	updated.UpdatedAt = now

	if err := s.repo.Save(ctx, updated, updated.TTL(now)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save promo code")
	}
	s.logg.Info(s.logg.WithField(ctx, "promo_code", updated.Code), "promo code updated")
	return &updated, nil
}

func (s *service) Delete(ctx context.Context, code string) error {
	promo, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, promo.Code); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete promo code")
	}
	s.logg.Info(s.logg.WithField(ctx, "promo_code", promo.Code), "promo code deleted")
	return nil
}

// Lookup returns the pricing view of code, or nil when it does not exist.
// Validity is left to the pricing engine.
func (s *service) Lookup(ctx context.Context, code string) (*pricing.Promotion, error) {
	promo, err := s.repo.Find(ctx, NormalizeCode(code))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promo code")
	}
	if promo == nil {
		return nil, nil
	}
	p := promo.Promotion()
	return &p, nil
}

// Validate returns the code only when it exists and is currently usable.
func (s *service) Validate(ctx context.Context, code string) (*PromoCode, error) {
	promo, err := s.repo.Find(ctx, NormalizeCode(code))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promo code")
	}
	if promo == nil || !promo.IsValid(s.now()) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, pricing.ErrInvalidPromotion, pricing.ErrInvalidPromotion.Error())
	}
	return promo, nil
}

func validateTerms(percent decimal.Decimal, minAmount, maxDiscount *decimal.Decimal, expiresAt, now time.Time) error {
	details := map[string]string{}
	if !percent.IsPositive() || percent.GreaterThan(hundred) {
		details["discountPercent"] = "must be greater than 0 and at most 100"
	}
	if minAmount != nil && minAmount.IsNegative() {
		details["minAmount"] = "must not be negative"
	}
	if maxDiscount != nil && !maxDiscount.IsPositive() {
		details["maxDiscount"] = "must be positive"
	}
	if !expiresAt.After(now) {
		details["expiresAt"] = "must be in the future"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid promo code terms").WithDetails(details)
	}
	return nil
}
