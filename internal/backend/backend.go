// Package backend defines the operation contract every platform billing
// backend implements.
package backend

import (
	"context"

	"iap-bridge/internal/domain"
)

// Backend is satisfied by exactly one concrete variant per build target.
// Implementations must be safe for concurrent use.
type Backend interface {
	GetProducts(ctx context.Context, productIDs []string, productType string) (*domain.GetProductsResponse, error)
	Purchase(ctx context.Context, req domain.PurchaseRequest) (*domain.Purchase, error)
	RestorePurchases(ctx context.Context, productType string) (*domain.RestorePurchasesResponse, error)
	// GetPurchaseHistory is the legacy synchronous query. Only the mobile
	// backend answers it; the others fail.
	GetPurchaseHistory() (*domain.GetPurchaseHistoryResponse, error)
	AcknowledgePurchase(ctx context.Context, purchaseToken string) (*domain.AcknowledgePurchaseResponse, error)
	ConsumePurchase(ctx context.Context, purchaseToken string) (*domain.ConsumePurchaseResponse, error)
	GetProductStatus(ctx context.Context, productID, productType string) (*domain.ProductStatus, error)
}

// Named is implemented by backends that report a platform name for logs and
// metrics labels.
type Named interface {
	Name() string
}

// NameOf returns b's platform name, or "unknown".
func NameOf(b Backend) string {
	if n, ok := b.(Named); ok {
		return n.Name()
	}
	return "unknown"
}

// EventSink receives out-of-band purchase updates from a backend. The event
// bridge registry satisfies it.
type EventSink interface {
	TriggerJSON(event string, v any) error
}
