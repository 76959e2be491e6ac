package validator

import (
	"errors"
	"strings"

	"iap-bridge/internal/domain"
)

var (
	ErrEmptyProductIDs    = errors.New("product IDs are empty")
	ErrEmptyProductID     = errors.New("product ID is empty")
	ErrEmptyPurchaseToken = errors.New("purchase token is empty")
	ErrInvalidState       = errors.New("purchase state is invalid")
)

func ValidateProductID(productID string) error {
	if strings.TrimSpace(productID) == "" {
		return ErrEmptyProductID
	}
	return nil
}

func ValidateProductIDs(productIDs []string) error {
	if len(productIDs) == 0 {
		return ErrEmptyProductIDs
	}
	for _, id := range productIDs {
		if err := ValidateProductID(id); err != nil {
			return err
		}
	}
	return nil
}

func ValidatePurchaseToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyPurchaseToken
	}
	return nil
}

// ValidatePurchase checks a Purchase received from outside a backend, e.g. a
// store notification.
func ValidatePurchase(p domain.Purchase) error {
	if err := ValidateProductID(p.ProductID); err != nil {
		return err
	}
	if err := ValidatePurchaseToken(p.PurchaseToken); err != nil {
		return err
	}
	if !p.PurchaseState.Valid() {
		return ErrInvalidState
	}
	return nil
}
