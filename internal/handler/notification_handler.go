package handler

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"iap-bridge/internal/domain"
	"iap-bridge/internal/validator"
)

// EventTrigger publishes a serialized event to the event bridge.
type EventTrigger interface {
	Trigger(event string, payload []byte) error
}

type notificationHandler struct {
	events EventTrigger
	event  string
}

// NewNotificationHandler turns store notifications into bridge events named
// event.
func NewNotificationHandler(events EventTrigger, event string) *notificationHandler {
	if event == "" {
		event = domain.EventPurchaseUpdated
	}
	return &notificationHandler{events: events, event: event}
}

// HandleMessage decodes one store notification carrying a Purchase and
// triggers it on the bridge in canonical form.
func (h *notificationHandler) HandleMessage(ctx context.Context, message []byte) error {
	var purchase domain.Purchase
	if err := json.Unmarshal(message, &purchase); err != nil {
		return fmt.Errorf("decode store notification: %w", err)
	}
	if err := validator.ValidatePurchase(purchase); err != nil {
		log.WithFields(log.Fields{
			"error":          err,
			"product_id":     purchase.ProductID,
			"purchase_token": purchase.PurchaseToken,
		}).Error("Store notification validation failed")
		return fmt.Errorf("validation error: %w", err)
	}

	payload, err := json.Marshal(purchase)
	if err != nil {
		return fmt.Errorf("encode purchase: %w", err)
	}
	if err := h.events.Trigger(h.event, payload); err != nil {
		return fmt.Errorf("trigger %s: %w", h.event, err)
	}

	log.WithFields(log.Fields{
		"product_id":     purchase.ProductID,
		"purchase_state": purchase.PurchaseState.String(),
	}).Info("Store notification forwarded")
	return nil
}
