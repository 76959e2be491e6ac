// Package unsupported is the fallback backend for platforms without native
// purchasing support. Every operation fails with unsupported-platform.
package unsupported

import (
	"context"

	"iap-bridge/internal/domain"
)

type Backend struct{}

func New() *Backend {
	return &Backend{}
}

func (*Backend) Name() string { return "unsupported" }

func (*Backend) GetProducts(context.Context, []string, string) (*domain.GetProductsResponse, error) {
	return nil, domain.ErrUnsupportedPlatform
}

func (*Backend) Purchase(context.Context, domain.PurchaseRequest) (*domain.Purchase, error) {
	return nil, domain.ErrUnsupportedPlatform
}

func (*Backend) RestorePurchases(context.Context, string) (*domain.RestorePurchasesResponse, error) {
	return nil, domain.ErrUnsupportedPlatform
}

func (*Backend) GetPurchaseHistory() (*domain.GetPurchaseHistoryResponse, error) {
	return nil, domain.ErrUnsupportedPlatform
}

func (*Backend) AcknowledgePurchase(context.Context, string) (*domain.AcknowledgePurchaseResponse, error) {
	return nil, domain.ErrUnsupportedPlatform
}

func (*Backend) ConsumePurchase(context.Context, string) (*domain.ConsumePurchaseResponse, error) {
	return nil, domain.ErrUnsupportedPlatform
}

func (*Backend) GetProductStatus(context.Context, string, string) (*domain.ProductStatus, error) {
	return nil, domain.ErrUnsupportedPlatform
}
