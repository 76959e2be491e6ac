package winstore

import (
	"context"
	"errors"
	"fmt"
)

// DateTime is the store's native timestamp: 100-nanosecond ticks since
// 1601-01-01T00:00:00Z.
type DateTime struct {
	UniversalTime int64
}

type BillingPeriodUnit int32

const (
	BillingPeriodDay BillingPeriodUnit = iota
	BillingPeriodWeek
	BillingPeriodMonth
	BillingPeriodYear
)

type StorePrice struct {
	FormattedPrice     string
	FormattedBasePrice string
	CurrencyCode       string
}

type SubscriptionInfo struct {
	BillingPeriod     uint32
	BillingPeriodUnit BillingPeriodUnit
}

// StoreSku is one purchasable variant of a product. SubscriptionInfo is nil
// for variants without subscription metadata.
type StoreSku struct {
	StoreID          string
	Price            StorePrice
	SubscriptionInfo *SubscriptionInfo
}

type StoreProduct struct {
	StoreID     string
	Title       string
	Description string
	Price       StorePrice
	Skus        []StoreSku
}

type StoreLicense struct {
	InAppOfferToken string
	SkuStoreID      string
	IsActive        bool
	ExpirationDate  DateTime
}

type StorePurchaseStatus int32

const (
	StatusSucceeded StorePurchaseStatus = iota
	StatusAlreadyPurchased
	StatusNotPurchased
	StatusNetworkError
	StatusServerError
)

type PurchaseProperties struct {
	Name             string
	ExtendedJSONData string
}

type PurchaseResult struct {
	Status        StorePurchaseStatus
	ExtendedError error
}

type KeyValuePair[V any] struct {
	Key   string
	Value V
}

// Iterator is a forward-only cursor over a store map view.
type Iterator[V any] interface {
	HasCurrent() (bool, error)
	Current() (KeyValuePair[V], error)
	MoveNext() (bool, error)
}

type MapView[V any] interface {
	First() (Iterator[V], error)
	HasKey(key string) (bool, error)
	Lookup(key string) (V, error)
}

// ProductQueryResult carries the vendor's extended error when the query was
// rejected.
type ProductQueryResult struct {
	Products      MapView[StoreProduct]
	ExtendedError error
}

type AppLicense struct {
	AddOnLicenses MapView[StoreLicense]
}

// StoreContext is the per-user session with the platform store.
type StoreContext interface {
	InitializeWithWindow(hwnd uintptr) error
	GetStoreProducts(ctx context.Context, productKinds, storeIDs []string) (*ProductQueryResult, error)
	RequestPurchase(ctx context.Context, storeID string) (*PurchaseResult, error)
	RequestPurchaseWithProperties(ctx context.Context, storeID string, props PurchaseProperties) (*PurchaseResult, error)
	GetAppLicense(ctx context.Context) (*AppLicense, error)
}

// ContextProvider returns the default store context for the current user.
type ContextProvider func() (StoreContext, error)

// WindowLocator resolves the native handle of a host window by label.
type WindowLocator interface {
	WindowHandle(label string) (uintptr, error)
}

var ErrWindowNotFound = errors.New("window not found")

// drain walks every element of view and passes it to fn. Running off the end
// of the iterator is normal completion.
func drain[V any](view MapView[V], fn func(key string, v V) error) error {
	if view == nil {
		return nil
	}
	it, err := view.First()
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	for {
		ok, err := it.HasCurrent()
		if err != nil {
			return fmt.Errorf("failed to read iterator: %w", err)
		}
		if !ok {
			return nil
		}
		item, err := it.Current()
		if err != nil {
			return fmt.Errorf("failed to read iterator: %w", err)
		}
		if err := fn(item.Key, item.Value); err != nil {
			return err
		}
		if _, err := it.MoveNext(); err != nil {
			return fmt.Errorf("failed to advance iterator: %w", err)
		}
	}
}
