package domain

import "encoding/json"

type InitializeResponse struct {
	Success bool `json:"success"`
}

type GetProductsRequest struct {
	ProductIDs  []string `json:"productIds"`
	ProductType string   `json:"productType"`
}

func (r *GetProductsRequest) UnmarshalJSON(data []byte) error {
	type plain GetProductsRequest
	p := plain{ProductType: DefaultProductType}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = GetProductsRequest(p)
	return nil
}

type GetProductsResponse struct {
	Products []Product `json:"products"`
}

// PurchaseOptions is flattened into PurchaseRequest on the wire.
type PurchaseOptions struct {
	OfferToken          *string `json:"offerToken,omitempty"`
	ObfuscatedAccountID *string `json:"obfuscatedAccountId,omitempty"`
	ObfuscatedProfileID *string `json:"obfuscatedProfileId,omitempty"`
	AppAccountToken     *string `json:"appAccountToken,omitempty"`
}

type PurchaseRequest struct {
	ProductID   string `json:"productId"`
	ProductType string `json:"productType"`
	PurchaseOptions
}

func (r *PurchaseRequest) UnmarshalJSON(data []byte) error {
	type plain PurchaseRequest
	p := plain{ProductType: DefaultProductType}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = PurchaseRequest(p)
	return nil
}

type RestorePurchasesRequest struct {
	ProductType string `json:"productType"`
}

func (r *RestorePurchasesRequest) UnmarshalJSON(data []byte) error {
	type plain RestorePurchasesRequest
	p := plain{ProductType: DefaultProductType}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RestorePurchasesRequest(p)
	return nil
}

type RestorePurchasesResponse struct {
	Purchases []Purchase `json:"purchases"`
}

type GetPurchaseHistoryResponse struct {
	History []PurchaseHistoryRecord `json:"history"`
}

type AcknowledgePurchaseRequest struct {
	PurchaseToken string `json:"purchaseToken"`
}

type AcknowledgePurchaseResponse struct {
	Success bool `json:"success"`
}

type ConsumePurchaseRequest struct {
	PurchaseToken string `json:"purchaseToken"`
}

type ConsumePurchaseResponse struct {
	Success bool `json:"success"`
}

type GetProductStatusRequest struct {
	ProductID   string `json:"productId"`
	ProductType string `json:"productType"`
}

func (r *GetProductStatusRequest) UnmarshalJSON(data []byte) error {
	type plain GetProductStatusRequest
	p := plain{ProductType: DefaultProductType}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = GetProductStatusRequest(p)
	return nil
}

// ProductTypeOrDefault substitutes DefaultProductType for an unset kind on
// requests built in code rather than decoded from JSON.
func ProductTypeOrDefault(productType string) string {
	if productType == "" {
		return DefaultProductType
	}
	return productType
}
