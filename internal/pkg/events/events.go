// Package events publishes order lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeOrderConfirmed = "order.confirmed"
	TypeOrderCancelled = "order.cancelled"
	TypeOrderDelivered = "order.delivered"
)

type OrderEvent struct {
	Type          string          `json:"type"`
	OrderID       string          `json:"order_id"`
	CustomerID    string          `json:"customer_id"`
	OrderStatus   string          `json:"order_status"`
	PaymentStatus string          `json:"payment_status"`
	OrderTotal    decimal.Decimal `json:"order_total"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, event OrderEvent) error {
	slog.DebugContext(ctx, "event dropped, no broker configured", "type", event.Type, "order_id", event.OrderID)
	return nil
}

func (Noop) Close() error { return nil }

func encode(event OrderEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("events: encode %s: %w", event.Type, err)
	}
	return payload, nil
}
