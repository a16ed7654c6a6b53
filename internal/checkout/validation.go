package checkout

import (
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// InsufficientStockError reports the first line item the catalog cannot cover.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// StockCheck pairs a requested quantity with the catalog's current stock.
type StockCheck struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

// ValidateStock fails on the first item whose requested quantity exceeds stock.
func ValidateStock(checks []StockCheck) error {
	for _, c := range checks {
		if c.Requested <= c.Available {
			continue
		}
		cause := &InsufficientStockError{
			ProductID:   c.ProductID,
			ProductName: c.ProductName,
			Requested:   c.Requested,
			Available:   c.Available,
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, fmt.Sprintf("insufficient stock for %s", displayName(c))).
			WithDetails(map[string]any{
				"productId": c.ProductID,
				"requested": c.Requested,
				"available": c.Available,
			})
	}
	return nil
}

func validateShipping(address, method string) error {
	details := map[string]any{}
	if strings.TrimSpace(address) == "" {
		details["shippingAddress"] = "required"
	}
	if strings.TrimSpace(method) == "" {
		details["paymentMethod"] = "required"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address and payment method are required").WithDetails(details)
	}
	return nil
}

func displayName(c StockCheck) string {
	if c.ProductName != "" {
		return c.ProductName
	}
	return fmt.Sprintf("product %d", c.ProductID)
}
