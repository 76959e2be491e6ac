// Package storekit is the backend for the signed-bundle-only native
// purchasing framework. Calls cross a foreign bridge that answers with JSON
// strings and reports failures as plain strings.
package storekit

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"iap-bridge/internal/domain"
	"iap-bridge/internal/translate"
)

// FFIError is a failure string returned by the foreign side.
type FFIError string

func (e FFIError) Error() string { return string(e) }

// Plugin is the foreign purchasing plugin. Every successful call returns the
// JSON encoding of the matching domain response.
type Plugin interface {
	GetProducts(ctx context.Context, productIDs []string, productType string) (string, error)
	Purchase(ctx context.Context, productID, productType string, offerToken *string) (string, error)
	RestorePurchases(ctx context.Context, productType string) (string, error)
	AcknowledgePurchase(ctx context.Context, purchaseToken string) (string, error)
	ConsumePurchase(ctx context.Context, purchaseToken string) (string, error)
	GetProductStatus(ctx context.Context, productID, productType string) (string, error)
}

// Guard is the environment preflight run before every call.
type Guard interface {
	Check() error
}

// Trigger forwards raw event payloads, e.g. to the event bridge.
type Trigger interface {
	Trigger(event string, payload []byte) error
}

type Backend struct {
	plugin Plugin
	guard  Guard
	events Trigger
}

func New(plugin Plugin, guard Guard, events Trigger) *Backend {
	return &Backend{plugin: plugin, guard: guard, events: events}
}

func (b *Backend) Name() string { return "storekit" }

func (b *Backend) preflight(op string) error {
	if err := b.guard.Check(); err != nil {
		log.WithError(err).WithField("operation", op).Warn("Refusing purchase call outside an application bundle")
		return err
	}
	return nil
}

func (b *Backend) GetProducts(ctx context.Context, productIDs []string, productType string) (*domain.GetProductsResponse, error) {
	if err := b.preflight("getProducts"); err != nil {
		return nil, err
	}
	resp, err := translate.Parse[domain.GetProductsResponse](b.plugin.GetProducts(ctx, productIDs, productType))
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (b *Backend) Purchase(ctx context.Context, req domain.PurchaseRequest) (*domain.Purchase, error) {
	if err := b.preflight("purchase"); err != nil {
		return nil, err
	}
	p, err := translate.Parse[domain.Purchase](b.plugin.Purchase(ctx, req.ProductID, req.ProductType, req.OfferToken))
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *Backend) RestorePurchases(ctx context.Context, productType string) (*domain.RestorePurchasesResponse, error) {
	if err := b.preflight("restorePurchases"); err != nil {
		return nil, err
	}
	resp, err := translate.Parse[domain.RestorePurchasesResponse](b.plugin.RestorePurchases(ctx, productType))
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (b *Backend) GetPurchaseHistory() (*domain.GetPurchaseHistoryResponse, error) {
	return nil, domain.NewError(domain.KindUnsupportedPlatform, "",
		"Purchase history is not available from this store")
}

func (b *Backend) AcknowledgePurchase(ctx context.Context, purchaseToken string) (*domain.AcknowledgePurchaseResponse, error) {
	if err := b.preflight("acknowledgePurchase"); err != nil {
		return nil, err
	}
	resp, err := translate.Parse[domain.AcknowledgePurchaseResponse](b.plugin.AcknowledgePurchase(ctx, purchaseToken))
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (b *Backend) ConsumePurchase(ctx context.Context, purchaseToken string) (*domain.ConsumePurchaseResponse, error) {
	if err := b.preflight("consumePurchase"); err != nil {
		return nil, err
	}
	resp, err := translate.Parse[domain.ConsumePurchaseResponse](b.plugin.ConsumePurchase(ctx, purchaseToken))
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (b *Backend) GetProductStatus(ctx context.Context, productID, productType string) (*domain.ProductStatus, error) {
	if err := b.preflight("getProductStatus"); err != nil {
		return nil, err
	}
	status, err := translate.Parse[domain.ProductStatus](b.plugin.GetProductStatus(ctx, productID, productType))
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// OnTransactionUpdate is called by the foreign side, on its own thread, when
// a transaction changes outside any request. It never blocks on listeners.
func (b *Backend) OnTransactionUpdate(event, payload string) error {
	if b.events == nil {
		return nil
	}
	if err := b.events.Trigger(event, []byte(payload)); err != nil {
		return FFIError(fmt.Sprintf("Failed to trigger event '%s': %v", event, err))
	}
	return nil
}
