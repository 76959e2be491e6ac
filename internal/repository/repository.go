package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"iap-bridge/internal/domain"
)

// PurchaseEvent is one row of the purchase_events audit log.
type PurchaseEvent struct {
	Event         string
	ProductID     string
	PurchaseToken string
	OrderID       sql.NullString
	PurchaseState domain.PurchaseStateValue
	PurchaseTime  int64
	Payload       []byte
}

type PurchaseEventRepository interface {
	SaveEvent(ctx context.Context, e PurchaseEvent) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type PostgresPurchaseEventRepository struct {
	db    execer
	event string
}

// NewPostgresPurchaseEventRepository records bridge deliveries of event.
func NewPostgresPurchaseEventRepository(db *sql.DB, event string) *PostgresPurchaseEventRepository {
	return &PostgresPurchaseEventRepository{db: db, event: event}
}

func (r *PostgresPurchaseEventRepository) SaveEvent(ctx context.Context, e PurchaseEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	log.WithFields(log.Fields{
		"event":          e.Event,
		"product_id":     e.ProductID,
		"purchase_token": e.PurchaseToken,
		"purchase_state": e.PurchaseState.String(),
	}).Debug("Saving purchase event to database")

	const query = `
        INSERT INTO purchase_events (event, product_id, purchase_token, order_id, purchase_state, purchase_time, payload)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `

	if _, err := r.db.ExecContext(ctx, query, e.Event, e.ProductID, e.PurchaseToken,
		nullStringOrNil(e.OrderID), int32(e.PurchaseState), e.PurchaseTime, string(e.Payload)); err != nil {
		return fmt.Errorf("failed to insert purchase event: %w", err)
	}
	return nil
}

// HandleMessage stores a serialized Purchase delivered by the event bridge.
func (r *PostgresPurchaseEventRepository) HandleMessage(ctx context.Context, message []byte) error {
	var p domain.Purchase
	if err := json.Unmarshal(message, &p); err != nil {
		return fmt.Errorf("decode purchase update: %w", err)
	}
	e := PurchaseEvent{
		Event:         r.event,
		ProductID:     p.ProductID,
		PurchaseToken: p.PurchaseToken,
		PurchaseState: p.PurchaseState,
		PurchaseTime:  p.PurchaseTime,
		Payload:       message,
	}
	if p.OrderID != nil {
		e.OrderID = sql.NullString{String: *p.OrderID, Valid: true}
	}
	return r.SaveEvent(ctx, e)
}

func nullStringOrNil(ns sql.NullString) interface{} {
	if ns.Valid {
		return ns.String
	}
	return nil
}
