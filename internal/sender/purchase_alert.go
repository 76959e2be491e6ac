package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"iap-bridge/internal/domain"
)

// PurchaseAlert mails operators about every purchase update delivered by the
// event bridge.
type PurchaseAlert struct {
	sender       EmailSender
	to           []string
	maxAttempts  int
	initialDelay time.Duration
}

func NewPurchaseAlert(sender EmailSender, to []string) *PurchaseAlert {
	return &PurchaseAlert{sender: sender, to: to, maxAttempts: 3, initialDelay: time.Second}
}

func alertBody(p domain.Purchase) (subject, body string) {
	subject = fmt.Sprintf("Purchase update: %s (%s)", p.ProductID, p.PurchaseState)
	orderID := "-"
	if p.OrderID != nil {
		orderID = *p.OrderID
	}
	body = fmt.Sprintf(
		"Product: %s\nState: %s\nOrder: %s\nToken: %s\nPackage: %s\nPurchased at: %s\nAuto-renewing: %t\n",
		p.ProductID,
		p.PurchaseState,
		orderID,
		p.PurchaseToken,
		p.PackageName,
		time.UnixMilli(p.PurchaseTime).UTC().Format(time.RFC3339),
		p.IsAutoRenewing,
	)
	return subject, body
}

func (a *PurchaseAlert) HandleMessage(ctx context.Context, message []byte) error {
	var p domain.Purchase
	if err := json.Unmarshal(message, &p); err != nil {
		return fmt.Errorf("decode purchase update: %w", err)
	}
	subject, body := alertBody(p)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	delay := a.initialDelay
	var err error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		err = a.sender.SendEmail(ctx, a.to, subject, body)
		if err == nil {
			if attempt > 1 {
				log.WithFields(log.Fields{
					"attempt":      attempt,
					"max_attempts": a.maxAttempts,
					"product_id":   p.ProductID,
				}).Info("Purchase alert sent after retry")
			}
			return nil
		}

		if attempt < a.maxAttempts {
			log.WithFields(log.Fields{
				"attempt":      attempt,
				"max_attempts": a.maxAttempts,
				"error":        err,
				"product_id":   p.ProductID,
			}).Warn("Failed to send purchase alert, retrying...")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return fmt.Errorf("send purchase alert: %w", err)
}
