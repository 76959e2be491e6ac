// Package winstore is the backend for the desktop native store API. It keeps
// one store session per adapter, created lazily and bound to the host window.
package winstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"iap-bridge/internal/backend"
	"iap-bridge/internal/domain"
	"iap-bridge/internal/translate"
)

type Config struct {
	// WindowLabel names the host window the store session is bound to.
	WindowLabel string
	// PackageName is reported as the package of every purchase.
	PackageName string
}

type Backend struct {
	provider ContextProvider
	windows  WindowLocator
	events   backend.EventSink
	cfg      Config
	now      func() time.Time

	mu      sync.RWMutex
	session StoreContext
}

func New(provider ContextProvider, windows WindowLocator, events backend.EventSink, cfg Config) *Backend {
	if cfg.WindowLabel == "" {
		cfg.WindowLabel = "main"
	}
	return &Backend{
		provider: provider,
		windows:  windows,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (b *Backend) Name() string { return "winstore" }

// storeContext returns the cached session, creating it on first use. Creation
// is serialized so exactly one session is ever installed.
func (b *Backend) storeContext() (StoreContext, error) {
	b.mu.RLock()
	session := b.session
	b.mu.RUnlock()
	if session != nil {
		return session, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		return b.session, nil
	}

	sc, err := b.provider()
	if err != nil {
		return nil, domain.Wrap(domain.KindSessionUnavailable, "storeNotInitialized",
			fmt.Sprintf("Failed to get store context: %v", err), err)
	}
	hwnd, err := b.windows.WindowHandle(b.cfg.WindowLabel)
	if err != nil {
		return nil, domain.Wrap(domain.KindSessionUnavailable, "windowError",
			fmt.Sprintf("Failed to get %s window: %v", b.cfg.WindowLabel, err), err)
	}
	if err := sc.InitializeWithWindow(hwnd); err != nil {
		return nil, domain.Wrap(domain.KindSessionUnavailable, "windowError",
			fmt.Sprintf("Failed to bind store context to window: %v", err), err)
	}

	log.WithField("window", b.cfg.WindowLabel).Debug("Store context initialized")
	b.session = sc
	return sc, nil
}

func (b *Backend) GetProducts(ctx context.Context, productIDs []string, productType string) (*domain.GetProductsResponse, error) {
	sc, err := b.storeContext()
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"product_ids":  productIDs,
		"product_type": productType,
	}).Debug("Querying store products")

	result, err := sc.GetStoreProducts(ctx, productKinds(productType), productIDs)
	if err != nil {
		return nil, translate.FromInvoke(err)
	}
	if result.ExtendedError != nil {
		return nil, domain.Wrap(domain.KindQueryFailed, "storeQueryFailed",
			fmt.Sprintf("Store query failed with error: %v", result.ExtendedError), result.ExtendedError)
	}

	products := make([]domain.Product, 0)
	err = drain(result.Products, func(_ string, sp StoreProduct) error {
		products = append(products, toProduct(sp, productType))
		return nil
	})
	if err != nil {
		return nil, translate.FromInvoke(err)
	}
	return &domain.GetProductsResponse{Products: products}, nil
}

type purchasePayload struct {
	Status    int32  `json:"status"`
	Message   string `json:"message"`
	ProductID string `json:"productId"`
}

func (b *Backend) Purchase(ctx context.Context, req domain.PurchaseRequest) (*domain.Purchase, error) {
	sc, err := b.storeContext()
	if err != nil {
		return nil, err
	}

	catalog, err := b.GetProducts(ctx, []string{req.ProductID}, req.ProductType)
	if err != nil {
		return nil, err
	}
	var product *domain.Product
	for i := range catalog.Products {
		if catalog.Products[i].ProductID == req.ProductID {
			product = &catalog.Products[i]
			break
		}
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}

	var result *PurchaseResult
	if req.OfferToken != nil {
		extended, err := json.Marshal(map[string]string{"skuId": *req.OfferToken})
		if err != nil {
			return nil, fmt.Errorf("failed to encode purchase properties: %w", err)
		}
		props := PurchaseProperties{Name: req.ProductID, ExtendedJSONData: string(extended)}
		result, err = sc.RequestPurchaseWithProperties(ctx, req.ProductID, props)
		if err != nil {
			return nil, translate.FromInvoke(err)
		}
	} else {
		result, err = sc.RequestPurchase(ctx, req.ProductID)
		if err != nil {
			return nil, translate.FromInvoke(err)
		}
	}

	state, err := purchaseState(result.Status)
	if err != nil {
		log.WithFields(log.Fields{
			"product_id": req.ProductID,
			"status":     result.Status,
		}).Warn("Store purchase did not succeed")
		return nil, err
	}

	var message string
	if result.ExtendedError != nil {
		message = result.ExtendedError.Error()
	}
	raw, err := json.Marshal(purchasePayload{
		Status:    int32(result.Status),
		Message:   message,
		ProductID: product.ProductID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode purchase payload: %w", err)
	}

	purchaseTime := b.now().UnixMilli()
	token := fmt.Sprintf("win_%s_%d", product.ProductID, purchaseTime)
	purchase := &domain.Purchase{
		OrderID:        domain.Ptr(token),
		PackageName:    b.cfg.PackageName,
		ProductID:      product.ProductID,
		PurchaseTime:   purchaseTime,
		PurchaseToken:  token,
		PurchaseState:  state,
		IsAutoRenewing: product.ProductType == domain.ProductTypeSubs,
		IsAcknowledged: true,
		OriginalJSON:   string(raw),
		Signature:      "",
	}

	if b.events != nil {
		if err := b.events.TriggerJSON(domain.EventPurchaseUpdated, purchase); err != nil {
			log.WithError(err).WithField("product_id", purchase.ProductID).Warn("Failed to publish purchase update")
		}
	}
	return purchase, nil
}

// purchaseState maps a store purchase status onto the purchase lifecycle.
// Only success and already-owned produce a purchase.
func purchaseState(status StorePurchaseStatus) (domain.PurchaseStateValue, error) {
	switch status {
	case StatusSucceeded, StatusAlreadyPurchased:
		return domain.PurchaseStatePurchased, nil
	case StatusNotPurchased:
		return 0, domain.ErrPurchaseIncomplete
	case StatusNetworkError:
		return 0, domain.ErrNetworkError
	case StatusServerError:
		return 0, domain.ErrServerError
	default:
		return 0, domain.ErrPurchaseFailed
	}
}

func (b *Backend) RestorePurchases(ctx context.Context, productType string) (*domain.RestorePurchasesResponse, error) {
	sc, err := b.storeContext()
	if err != nil {
		return nil, err
	}
	license, err := sc.GetAppLicense(ctx)
	if err != nil {
		return nil, translate.FromInvoke(err)
	}

	now := b.now()
	purchases := make([]domain.Purchase, 0)
	err = drain(license.AddOnLicenses, func(_ string, l StoreLicense) error {
		p := toPurchase(l, productType, b.cfg.PackageName, now)
		if p.PurchaseState == domain.PurchaseStatePurchased {
			purchases = append(purchases, p)
		}
		return nil
	})
	if err != nil {
		return nil, translate.FromInvoke(err)
	}

	log.WithField("count", len(purchases)).Debug("Restored store licences")
	return &domain.RestorePurchasesResponse{Purchases: purchases}, nil
}

func (b *Backend) GetPurchaseHistory() (*domain.GetPurchaseHistoryResponse, error) {
	return nil, domain.NewError(domain.KindUnsupportedPlatform, "",
		"Purchase history is not available from the desktop store")
}

// AcknowledgePurchase is a no-op: the store acknowledges purchases itself.
func (b *Backend) AcknowledgePurchase(context.Context, string) (*domain.AcknowledgePurchaseResponse, error) {
	return &domain.AcknowledgePurchaseResponse{Success: true}, nil
}

// ConsumePurchase is a no-op: the store fulfils consumables itself.
func (b *Backend) ConsumePurchase(context.Context, string) (*domain.ConsumePurchaseResponse, error) {
	return &domain.ConsumePurchaseResponse{Success: true}, nil
}

func (b *Backend) GetProductStatus(ctx context.Context, productID, productType string) (*domain.ProductStatus, error) {
	sc, err := b.storeContext()
	if err != nil {
		return nil, err
	}
	license, err := sc.GetAppLicense(ctx)
	if err != nil {
		return nil, translate.FromInvoke(err)
	}

	notOwned := &domain.ProductStatus{ProductID: productID}
	if license.AddOnLicenses == nil {
		return notOwned, nil
	}
	ok, err := license.AddOnLicenses.HasKey(productID)
	if err != nil {
		return nil, translate.FromInvoke(err)
	}
	if !ok {
		return notOwned, nil
	}
	l, err := license.AddOnLicenses.Lookup(productID)
	if err != nil {
		return nil, translate.FromInvoke(err)
	}

	status := toProductStatus(productID, productType, l, b.now())
	return &status, nil
}
