// Package service is the inbound operation contract exposed to the host. It
// fills request defaults, validates input and delegates to the platform
// backend.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"iap-bridge/internal/backend"
	"iap-bridge/internal/domain"
	"iap-bridge/internal/validator"
)

// Recorder receives one observation per finished backend call.
type Recorder interface {
	ObserveOperation(backend, operation string, started time.Time, err error)
}

type purchaseService struct {
	backend  backend.Backend
	name     string
	recorder Recorder
}

// NewPurchaseService wraps b. recorder may be nil.
func NewPurchaseService(b backend.Backend, recorder Recorder) *purchaseService {
	return &purchaseService{backend: b, name: backend.NameOf(b), recorder: recorder}
}

func invalidArgument(err error) error {
	return domain.Wrap(domain.KindInvocationRejected, "invalidArgument", err.Error(), err)
}

func (s *purchaseService) finish(operation string, fields log.Fields, started time.Time, err error) {
	if s.recorder != nil {
		s.recorder.ObserveOperation(s.name, operation, started, err)
	}
	entry := log.WithFields(fields).WithFields(log.Fields{
		"backend":   s.name,
		"operation": operation,
		"duration":  time.Since(started),
	})
	if err != nil {
		entry.WithError(err).WithField("error_kind", domain.KindOf(err)).Error("Purchase operation failed")
		return
	}
	entry.Info("Purchase operation completed")
}

func requestFields() log.Fields {
	return log.Fields{"request_id": uuid.NewString()}
}

// Initialize is kept for hosts built against the old contract. It always
// fails.
func (s *purchaseService) Initialize(ctx context.Context) (*domain.InitializeResponse, error) {
	log.WithField("backend", s.name).Warn("initialize() called")
	return nil, domain.ErrInitializeDeprecated
}

func (s *purchaseService) GetProducts(ctx context.Context, req domain.GetProductsRequest) (*domain.GetProductsResponse, error) {
	fields := requestFields()
	fields["product_ids"] = req.ProductIDs
	if err := validator.ValidateProductIDs(req.ProductIDs); err != nil {
		return nil, invalidArgument(err)
	}

	started := time.Now()
	resp, err := s.backend.GetProducts(ctx, req.ProductIDs, domain.ProductTypeOrDefault(req.ProductType))
	s.finish("getProducts", fields, started, err)
	return resp, err
}

func (s *purchaseService) Purchase(ctx context.Context, req domain.PurchaseRequest) (*domain.Purchase, error) {
	fields := requestFields()
	fields["product_id"] = req.ProductID
	if err := validator.ValidateProductID(req.ProductID); err != nil {
		return nil, invalidArgument(err)
	}
	req.ProductType = domain.ProductTypeOrDefault(req.ProductType)

	started := time.Now()
	p, err := s.backend.Purchase(ctx, req)
	if err == nil {
		fields["purchase_state"] = p.PurchaseState.String()
	}
	s.finish("purchase", fields, started, err)
	return p, err
}

func (s *purchaseService) RestorePurchases(ctx context.Context, req domain.RestorePurchasesRequest) (*domain.RestorePurchasesResponse, error) {
	fields := requestFields()

	started := time.Now()
	resp, err := s.backend.RestorePurchases(ctx, domain.ProductTypeOrDefault(req.ProductType))
	if err == nil {
		fields["restored"] = len(resp.Purchases)
	}
	s.finish("restorePurchases", fields, started, err)
	return resp, err
}

func (s *purchaseService) GetPurchaseHistory(ctx context.Context) (*domain.GetPurchaseHistoryResponse, error) {
	started := time.Now()
	resp, err := s.backend.GetPurchaseHistory()
	s.finish("getPurchaseHistory", requestFields(), started, err)
	return resp, err
}

func (s *purchaseService) AcknowledgePurchase(ctx context.Context, req domain.AcknowledgePurchaseRequest) (*domain.AcknowledgePurchaseResponse, error) {
	if err := validator.ValidatePurchaseToken(req.PurchaseToken); err != nil {
		return nil, invalidArgument(err)
	}

	started := time.Now()
	resp, err := s.backend.AcknowledgePurchase(ctx, req.PurchaseToken)
	s.finish("acknowledgePurchase", requestFields(), started, err)
	return resp, err
}

func (s *purchaseService) ConsumePurchase(ctx context.Context, req domain.ConsumePurchaseRequest) (*domain.ConsumePurchaseResponse, error) {
	if err := validator.ValidatePurchaseToken(req.PurchaseToken); err != nil {
		return nil, invalidArgument(err)
	}

	started := time.Now()
	resp, err := s.backend.ConsumePurchase(ctx, req.PurchaseToken)
	s.finish("consumePurchase", requestFields(), started, err)
	return resp, err
}

func (s *purchaseService) GetProductStatus(ctx context.Context, req domain.GetProductStatusRequest) (*domain.ProductStatus, error) {
	fields := requestFields()
	fields["product_id"] = req.ProductID
	if err := validator.ValidateProductID(req.ProductID); err != nil {
		return nil, invalidArgument(err)
	}

	started := time.Now()
	status, err := s.backend.GetProductStatus(ctx, req.ProductID, domain.ProductTypeOrDefault(req.ProductType))
	if err == nil {
		fields["is_owned"] = status.IsOwned
	}
	s.finish("getProductStatus", fields, started, err)
	return status, err
}
