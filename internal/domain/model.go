package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Product kinds accepted by every request that carries a productType.
const (
	ProductTypeSubs  = "subs"
	ProductTypeInApp = "inapp"
	ProductTypeAny   = "any"
)

// DefaultProductType is used when a request omits productType.
const DefaultProductType = ProductTypeSubs

// EventPurchaseUpdated is the event name carrying a serialized Purchase.
const EventPurchaseUpdated = "purchaseUpdated"

// Recurrence modes of a PricingPhase.
const (
	RecurrenceFinite   = 0
	RecurrenceInfinite = 1
)

type PricingPhase struct {
	FormattedPrice    string `json:"formattedPrice"`
	PriceCurrencyCode string `json:"priceCurrencyCode"`
	PriceAmountMicros int64  `json:"priceAmountMicros"`
	BillingPeriod     string `json:"billingPeriod"`
	BillingCycleCount int32  `json:"billingCycleCount"`
	RecurrenceMode    int32  `json:"recurrenceMode"`
}

// SubscriptionOffer holds its phases in the order they apply.
type SubscriptionOffer struct {
	OfferToken    string         `json:"offerToken"`
	BasePlanID    string         `json:"basePlanId"`
	OfferID       *string        `json:"offerId,omitempty"`
	PricingPhases []PricingPhase `json:"pricingPhases"`
}

type Product struct {
	ProductID                string              `json:"productId"`
	Title                    string              `json:"title"`
	Description              string              `json:"description"`
	ProductType              string              `json:"productType"`
	FormattedPrice           *string             `json:"formattedPrice,omitempty"`
	PriceCurrencyCode        *string             `json:"priceCurrencyCode,omitempty"`
	PriceAmountMicros        *int64              `json:"priceAmountMicros,omitempty"`
	SubscriptionOfferDetails []SubscriptionOffer `json:"subscriptionOfferDetails,omitempty"`
}

type Purchase struct {
	OrderID           *string            `json:"orderId,omitempty"`
	PackageName       string             `json:"packageName"`
	ProductID         string             `json:"productId"`
	PurchaseTime      int64              `json:"purchaseTime"`
	PurchaseToken     string             `json:"purchaseToken"`
	PurchaseState     PurchaseStateValue `json:"purchaseState"`
	IsAutoRenewing    bool               `json:"isAutoRenewing"`
	IsAcknowledged    bool               `json:"isAcknowledged"`
	OriginalJSON      string             `json:"originalJson"`
	Signature         string             `json:"signature"`
	OriginalID        *string            `json:"originalId,omitempty"`
	JWSRepresentation *string            `json:"jwsRepresentation,omitempty"`
}

// ErrMissingPurchaseState is returned when a Purchase is decoded without a
// purchaseState.
var ErrMissingPurchaseState = errors.New("purchase state is required")

// UnmarshalJSON requires purchaseState to be present.
func (p *Purchase) UnmarshalJSON(data []byte) error {
	type plain Purchase
	aux := struct {
		*plain
		PurchaseState *PurchaseStateValue `json:"purchaseState"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.PurchaseState == nil {
		return ErrMissingPurchaseState
	}
	p.PurchaseState = *aux.PurchaseState
	return nil
}

// PurchaseStateValue is encoded on the wire as a bare integer.
type PurchaseStateValue int32

const (
	PurchaseStatePurchased PurchaseStateValue = 0
	PurchaseStateCanceled  PurchaseStateValue = 1
	PurchaseStatePending   PurchaseStateValue = 2
)

func (s PurchaseStateValue) Valid() bool {
	return s >= PurchaseStatePurchased && s <= PurchaseStatePending
}

func (s PurchaseStateValue) String() string {
	switch s {
	case PurchaseStatePurchased:
		return "purchased"
	case PurchaseStateCanceled:
		return "canceled"
	case PurchaseStatePending:
		return "pending"
	default:
		return fmt.Sprintf("PurchaseStateValue(%d)", int32(s))
	}
}

func (s PurchaseStateValue) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid purchase state: %d", int32(s))
	}
	return json.Marshal(int32(s))
}

func (s *PurchaseStateValue) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return ErrMissingPurchaseState
	}
	var v int32
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid purchase state %s: %w", data, err)
	}
	state := PurchaseStateValue(v)
	if !state.Valid() {
		return fmt.Errorf("invalid purchase state: %d", v)
	}
	*s = state
	return nil
}

// ProductStatus leaves every optional field nil when the product was never
// purchased or its history cannot be resolved.
type ProductStatus struct {
	ProductID      string              `json:"productId"`
	IsOwned        bool                `json:"isOwned"`
	PurchaseState  *PurchaseStateValue `json:"purchaseState,omitempty"`
	PurchaseTime   *int64              `json:"purchaseTime,omitempty"`
	ExpirationTime *int64              `json:"expirationTime,omitempty"`
	IsAutoRenewing *bool               `json:"isAutoRenewing,omitempty"`
	IsAcknowledged *bool               `json:"isAcknowledged,omitempty"`
	PurchaseToken  *string             `json:"purchaseToken,omitempty"`
}

type PurchaseHistoryRecord struct {
	ProductID     string `json:"productId"`
	PurchaseTime  int64  `json:"purchaseTime"`
	PurchaseToken string `json:"purchaseToken"`
	Quantity      int32  `json:"quantity"`
	OriginalJSON  string `json:"originalJson"`
	Signature     string `json:"signature"`
}

// Ptr returns a pointer to v. Used to fill optional model fields.
func Ptr[T any](v T) *T {
	return &v
}
