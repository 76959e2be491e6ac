package winstore

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"iap-bridge/internal/domain"
)

const (
	ticksPerMillisecond = 10_000
	// Ticks between 1601-01-01 and 1970-01-01.
	unixEpochTicks = 116_444_736_000_000_000
)

// approxRenewalPeriod is used to estimate a subscription's purchase time from
// its expiration, since licences do not report when they were bought. It
// assumes monthly billing.
const approxRenewalPeriod = 30 * 24 * time.Hour

// DateTimeToUnixMillis converts a store timestamp to Unix milliseconds.
// Ticks finer than a millisecond are dropped toward the earlier millisecond.
func DateTimeToUnixMillis(dt DateTime) int64 {
	delta := dt.UniversalTime - unixEpochTicks
	ms := delta / ticksPerMillisecond
	if delta%ticksPerMillisecond < 0 {
		ms--
	}
	return ms
}

// billingPeriod renders a period as an ISO-8601 duration, e.g. "P1M".
func billingPeriod(info SubscriptionInfo) string {
	unit := "M"
	switch info.BillingPeriodUnit {
	case BillingPeriodDay:
		unit = "D"
	case BillingPeriodWeek:
		unit = "W"
	case BillingPeriodMonth:
		unit = "M"
	case BillingPeriodYear:
		unit = "Y"
	}
	return fmt.Sprintf("P%d%s", info.BillingPeriod, unit)
}

// priceMicros extracts the numeric part of a formatted base price. Anything
// unparsable is 0.
func priceMicros(formatted string) int64 {
	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, formatted)
	value, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(value * 1_000_000))
}

// productKinds maps a product type onto the store's product kind filter.
func productKinds(productType string) []string {
	switch productType {
	case domain.ProductTypeInApp:
		return []string{"Consumable", "UnmanagedConsumable"}
	case domain.ProductTypeSubs:
		return []string{"Subscription", "Durable"}
	default:
		return []string{"Consumable", "UnmanagedConsumable", "Durable", "Subscription"}
	}
}

func toProduct(sp StoreProduct, productType string) domain.Product {
	micros := priceMicros(sp.Price.FormattedBasePrice)

	product := domain.Product{
		ProductID:         sp.StoreID,
		Title:             sp.Title,
		Description:       sp.Description,
		ProductType:       productType,
		FormattedPrice:    domain.Ptr(sp.Price.FormattedPrice),
		PriceCurrencyCode: domain.Ptr(sp.Price.CurrencyCode),
		PriceAmountMicros: domain.Ptr(micros),
	}
	if productType != domain.ProductTypeSubs {
		return product
	}

	for _, sku := range sp.Skus {
		if sku.SubscriptionInfo == nil {
			continue
		}
		// The store exposes no cycle count, so every SKU is one open-ended phase.
		product.SubscriptionOfferDetails = append(product.SubscriptionOfferDetails, domain.SubscriptionOffer{
			OfferToken: sku.StoreID,
			BasePlanID: sku.StoreID,
			PricingPhases: []domain.PricingPhase{{
				FormattedPrice:    sku.Price.FormattedPrice,
				PriceCurrencyCode: sp.Price.CurrencyCode,
				PriceAmountMicros: micros,
				BillingPeriod:     billingPeriod(*sku.SubscriptionInfo),
				BillingCycleCount: 0,
				RecurrenceMode:    domain.RecurrenceInfinite,
			}},
		})
	}
	return product
}

// estimatePurchaseTime approximates when a licence was bought.
func estimatePurchaseTime(productType string, expirationMillis int64, now time.Time) int64 {
	if productType == domain.ProductTypeSubs && expirationMillis > 0 {
		return expirationMillis - approxRenewalPeriod.Milliseconds()
	}
	return now.UnixMilli()
}

func licenseState(l StoreLicense) domain.PurchaseStateValue {
	if l.IsActive {
		return domain.PurchaseStatePurchased
	}
	return domain.PurchaseStateCanceled
}

type licensePayload struct {
	IsActive       bool  `json:"isActive"`
	ExpirationDate int64 `json:"expirationDate"`
}

func toPurchase(l StoreLicense, productType, packageName string, now time.Time) domain.Purchase {
	expiration := DateTimeToUnixMillis(l.ExpirationDate)
	raw, _ := json.Marshal(licensePayload{IsActive: l.IsActive, ExpirationDate: expiration})

	return domain.Purchase{
		OrderID:        domain.Ptr(l.SkuStoreID),
		PackageName:    packageName,
		ProductID:      l.InAppOfferToken,
		PurchaseTime:   estimatePurchaseTime(productType, expiration, now),
		PurchaseToken:  l.SkuStoreID,
		PurchaseState:  licenseState(l),
		IsAutoRenewing: productType == domain.ProductTypeSubs && l.IsActive,
		IsAcknowledged: true,
		OriginalJSON:   string(raw),
		Signature:      "",
	}
}

func toProductStatus(productID, productType string, l StoreLicense, now time.Time) domain.ProductStatus {
	expiration := DateTimeToUnixMillis(l.ExpirationDate)
	state := licenseState(l)

	status := domain.ProductStatus{
		ProductID:      productID,
		IsOwned:        l.IsActive,
		PurchaseState:  &state,
		PurchaseTime:   domain.Ptr(estimatePurchaseTime(productType, expiration, now)),
		IsAutoRenewing: domain.Ptr(productType == domain.ProductTypeSubs && l.IsActive),
		IsAcknowledged: domain.Ptr(true),
		PurchaseToken:  domain.Ptr(l.SkuStoreID),
	}
	if expiration > 0 {
		status.ExpirationTime = domain.Ptr(expiration)
	}
	return status
}
