package cart

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxPromoCodeLen = 64

type addItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// quantity 0 removes the line, so presence is checked instead of value.
type updateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type applyPromoRequest struct {
	Code string `json:"code" validate:"required"`
}

// cartAction is one cart operation for an authenticated user.
type cartAction func(r *http.Request, userID string) (*pricing.Cart, error)

// handle resolves the caller and writes the resulting cart, or the error.
func handle(svc cartsvc.Service, logg *logger.Logger, action cartAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID, err := middleware.RequireUserID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cart, err := action(r, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if cart == nil {
			responses.WriteNoContent(w)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}

// Fetch returns the caller's cart, reconciled against the catalog.
func Fetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, userID string) (*pricing.Cart, error) {
		return svc.Get(r.Context(), userID)
	})
}

func AddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, userID string) (*pricing.Cart, error) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.AddItem(r.Context(), userID, payload.ProductID, payload.Quantity)
	})
}

func UpdateQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, userID string) (*pricing.Cart, error) {
		productID, err := validators.ParseInt64Param(r, "productId")
		if err != nil {
			return nil, err
		}
		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateQuantity(r.Context(), userID, productID, *payload.Quantity)
	})
}

func RemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, userID string) (*pricing.Cart, error) {
		productID, err := validators.ParseInt64Param(r, "productId")
		if err != nil {
			return nil, err
		}
		return svc.RemoveItem(r.Context(), userID, productID)
	})
}

func ApplyPromo(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, userID string) (*pricing.Cart, error) {
		var payload applyPromoRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.ApplyPromo(r.Context(), userID, validators.SanitizeString(payload.Code, maxPromoCodeLen))
	})
}

func RemovePromo(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, userID string) (*pricing.Cart, error) {
		return svc.RemovePromo(r.Context(), userID)
	})
}

// Clear drops the cart and answers 204.
func Clear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, userID string) (*pricing.Cart, error) {
		return nil, svc.Clear(r.Context(), userID)
	})
}
