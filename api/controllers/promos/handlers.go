package promos

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	promosvc "github.com/angelmondragon/storefront-backend/internal/promos"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type createPromoRequest struct {
	Code            string           `json:"code" validate:"required,max=64"`
	Description     string           `json:"description" validate:"max=255"`
	DiscountPercent decimal.Decimal  `json:"discountPercent"`
	ExpiresAt       time.Time        `json:"expiresAt" validate:"required"`
	MinAmount       *decimal.Decimal `json:"minAmount"`
	MaxDiscount     *decimal.Decimal `json:"maxDiscount"`
}

type updatePromoRequest struct {
	Description     *string          `json:"description" validate:"omitempty,max=255"`
	DiscountPercent *decimal.Decimal `json:"discountPercent"`
	ExpiresAt       *time.Time       `json:"expiresAt"`
	MinAmount       *decimal.Decimal `json:"minAmount"`
	MaxDiscount     *decimal.Decimal `json:"maxDiscount"`
	Active          *bool            `json:"active"`
}

// List returns every promo code, including expired and inactive ones.
func List(svc promosvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}
		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Active returns the codes a shopper can apply right now.
func Active(svc promosvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}
		list, err := svc.ListActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Get(svc promosvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}
		code, err := codeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		promo, err := svc.Get(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, promo)
	}
}

func Create(svc promosvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}

		var payload createPromoRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		promo, err := svc.Create(r.Context(), promosvc.CreateInput{
			Code:            payload.Code,
			Description:     validators.SanitizeString(payload.Description, 255),
			DiscountPercent: payload.DiscountPercent,
			ExpiresAt:       payload.ExpiresAt,
			MinAmount:       payload.MinAmount,
			MaxDiscount:     payload.MaxDiscount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, promo)
	}
}

func Update(svc promosvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}
		code, err := codeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updatePromoRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Description != nil {
			trimmed := validators.SanitizeString(*payload.Description, 255)
			payload.Description = &trimmed
		}

		promo, err := svc.Update(r.Context(), code, promosvc.UpdateInput{
			Description:     payload.Description,
			DiscountPercent: payload.DiscountPercent,
			ExpiresAt:       payload.ExpiresAt,
			MinAmount:       payload.MinAmount,
			MaxDiscount:     payload.MaxDiscount,
			Active:          payload.Active,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, promo)
	}
}

func Delete(svc promosvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}
		code, err := codeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), code); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func codeParam(r *http.Request) (string, error) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "promo code is required")
	}
	return code, nil
}
