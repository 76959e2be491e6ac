// Package mobile is the backend for mobile store billing. The native plugin is
// opaque: each operation is forwarded by method name and the plugin answers
// with the JSON encoding of the response.
package mobile

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"iap-bridge/internal/domain"
	"iap-bridge/internal/translate"
)

// PluginHandle reaches the native plugin. Failures come back through the
// normal error channel.
type PluginHandle interface {
	RunAsync(ctx context.Context, method string, payload any) (json.RawMessage, error)
	Run(method string, payload any) (json.RawMessage, error)
}

type Backend struct {
	handle PluginHandle
}

func New(handle PluginHandle) *Backend {
	return &Backend{handle: handle}
}

func (b *Backend) Name() string { return "mobile" }

func decode[T any](method string, raw json.RawMessage, err error) (*T, error) {
	if err != nil {
		log.WithError(err).WithField("method", method).Debug("Mobile plugin call failed")
		return nil, translate.FromInvoke(err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.Wrap(domain.KindDeserializationError, "", err.Error(), err)
	}
	return &out, nil
}

func (b *Backend) GetProducts(ctx context.Context, productIDs []string, productType string) (*domain.GetProductsResponse, error) {
	raw, err := b.handle.RunAsync(ctx, "getProducts", domain.GetProductsRequest{
		ProductIDs:  productIDs,
		ProductType: productType,
	})
	return decode[domain.GetProductsResponse]("getProducts", raw, err)
}

func (b *Backend) Purchase(ctx context.Context, req domain.PurchaseRequest) (*domain.Purchase, error) {
	raw, err := b.handle.RunAsync(ctx, "purchase", req)
	return decode[domain.Purchase]("purchase", raw, err)
}

func (b *Backend) RestorePurchases(ctx context.Context, productType string) (*domain.RestorePurchasesResponse, error) {
	raw, err := b.handle.RunAsync(ctx, "restorePurchases", domain.RestorePurchasesRequest{ProductType: productType})
	return decode[domain.RestorePurchasesResponse]("restorePurchases", raw, err)
}

// GetPurchaseHistory is synchronous; it is the only blocking call kept for
// the legacy history query.
func (b *Backend) GetPurchaseHistory() (*domain.GetPurchaseHistoryResponse, error) {
	raw, err := b.handle.Run("getPurchaseHistory", struct{}{})
	return decode[domain.GetPurchaseHistoryResponse]("getPurchaseHistory", raw, err)
}

func (b *Backend) AcknowledgePurchase(ctx context.Context, purchaseToken string) (*domain.AcknowledgePurchaseResponse, error) {
	raw, err := b.handle.RunAsync(ctx, "acknowledgePurchase", domain.AcknowledgePurchaseRequest{PurchaseToken: purchaseToken})
	return decode[domain.AcknowledgePurchaseResponse]("acknowledgePurchase", raw, err)
}

func (b *Backend) ConsumePurchase(ctx context.Context, purchaseToken string) (*domain.ConsumePurchaseResponse, error) {
	raw, err := b.handle.RunAsync(ctx, "consumePurchase", domain.ConsumePurchaseRequest{PurchaseToken: purchaseToken})
	return decode[domain.ConsumePurchaseResponse]("consumePurchase", raw, err)
}

func (b *Backend) GetProductStatus(ctx context.Context, productID, productType string) (*domain.ProductStatus, error) {
	raw, err := b.handle.RunAsync(ctx, "getProductStatus", domain.GetProductStatusRequest{
		ProductID:   productID,
		ProductType: productType,
	})
	return decode[domain.ProductStatus]("getProductStatus", raw, err)
}
