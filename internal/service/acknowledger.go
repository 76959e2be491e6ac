package service

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"iap-bridge/internal/domain"
)

// PurchaseAcknowledger is the part of the purchase service the acknowledger
// needs.
type PurchaseAcknowledger interface {
	AcknowledgePurchase(ctx context.Context, req domain.AcknowledgePurchaseRequest) (*domain.AcknowledgePurchaseResponse, error)
}

type acknowledger struct {
	service PurchaseAcknowledger
}

// NewAcknowledger returns a bridge listener that acknowledges purchased,
// unacknowledged updates.
func NewAcknowledger(service PurchaseAcknowledger) *acknowledger {
	return &acknowledger{service: service}
}

func (a *acknowledger) HandleMessage(ctx context.Context, message []byte) error {
	var p domain.Purchase
	if err := json.Unmarshal(message, &p); err != nil {
		return fmt.Errorf("decode purchase update: %w", err)
	}
	if p.PurchaseState != domain.PurchaseStatePurchased || p.IsAcknowledged {
		return nil
	}

	resp, err := a.service.AcknowledgePurchase(ctx, domain.AcknowledgePurchaseRequest{PurchaseToken: p.PurchaseToken})
	if err != nil {
		return fmt.Errorf("acknowledge %s: %w", p.ProductID, err)
	}
	log.WithFields(log.Fields{
		"product_id": p.ProductID,
		"success":    resp.Success,
	}).Info("Purchase acknowledged")
	return nil
}
