package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusDelivered OrderStatus = "DELIVERED"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// transitions lists the statuses reachable from each status. CANCELLED and
// DELIVERED are terminal.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusDelivered, StatusCancelled},
}

type Order struct {
	ID            string `json:"order_id" gorm:"primaryKey;size:36"`
	CustomerID    string `json:"customer_id" gorm:"not null;index"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	// IdempotencyKey is NULL when the caller did not send one; the unique
	// index only constrains non-NULL keys.
	IdempotencyKey *string         `json:"idempotency_key,omitempty" gorm:"uniqueIndex;size:255"`
	Subtotal       decimal.Decimal `json:"subtotal" gorm:"type:numeric(12,2);not null"`
	Tax            decimal.Decimal `json:"tax" gorm:"type:numeric(12,2);not null"`
	Shipping       decimal.Decimal `json:"shipping" gorm:"type:numeric(12,2);not null"`
	OrderTotal     decimal.Decimal `json:"order_total" gorm:"type:numeric(12,2);not null"`
	OrderStatus    OrderStatus     `json:"order_status" gorm:"size:16;not null;index"`
	PaymentStatus  PaymentStatus   `json:"payment_status" gorm:"size:16;not null"`
	PaymentID      string          `json:"payment_id,omitempty"`
	OrderDate      time.Time       `json:"order_date" gorm:"not null"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []OrderItem     `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

type OrderItem struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	OrderID       string          `json:"order_id" gorm:"size:36;not null;index"`
	ProductID     string          `json:"product_id" gorm:"not null"`
	SKU           string          `json:"sku"`
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity" gorm:"not null"`
	UnitPrice     decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2);not null"`
	LineTotal     decimal.Decimal `json:"line_total" gorm:"type:numeric(12,2);not null"`
	ReservationID string          `json:"reservation_id" gorm:"not null"`
	Warehouse     string          `json:"warehouse"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewOrder builds a PENDING/UNPAID order shell carrying the customer snapshot.
// An empty idempotency key is stored as NULL.
func NewOrder(customerID, customerName, customerEmail string, shipping decimal.Decimal, idempotencyKey string) *Order {
	o := &Order{
		ID:            uuid.NewString(),
		CustomerID:    customerID,
		CustomerName:  customerName,
		CustomerEmail: customerEmail,
		Shipping:      shipping.Round(2),
		Subtotal:      decimal.Zero,
		Tax:           decimal.Zero,
		OrderStatus:   StatusPending,
		PaymentStatus: PaymentUnpaid,
		OrderDate:     time.Now().UTC(),
	}
	o.OrderTotal = o.Shipping
	if idempotencyKey != "" {
		key := idempotencyKey
		o.IdempotencyKey = &key
	}
	return o
}

func NewOrderItem(orderID, productID, sku, name string, quantity int, unitPrice decimal.Decimal, reservationID, warehouse string) OrderItem {
	item := OrderItem{
		OrderID:       orderID,
		ProductID:     productID,
		SKU:           sku,
		ProductName:   name,
		Quantity:      quantity,
		UnitPrice:     unitPrice,
		ReservationID: reservationID,
		Warehouse:     warehouse,
	}
	item.LineTotal = item.Subtotal()
	return item
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CalculateTotals recomputes subtotal, tax and order total from the items:
// tax = round(subtotal * taxRate, 2), total = subtotal + tax + shipping.
func (o *Order) CalculateTotals(taxRate decimal.Decimal) {
	subtotal := decimal.Zero
	for i := range o.Items {
		o.Items[i].LineTotal = o.Items[i].Subtotal()
		subtotal = subtotal.Add(o.Items[i].LineTotal)
	}
	o.Subtotal = subtotal
	o.Tax = subtotal.Mul(taxRate).Round(2)
	o.OrderTotal = o.Subtotal.Add(o.Tax).Add(o.Shipping)
}

func (o *Order) IdempotencyKeyValue() string {
	if o.IdempotencyKey == nil {
		return ""
	}
	return *o.IdempotencyKey
}

func (o *Order) CanTransitionTo(next OrderStatus) bool {
	for _, s := range transitions[o.OrderStatus] {
		if s == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the order to next or fails without touching it.
func (o *Order) TransitionTo(next OrderStatus) error {
	if o.CanTransitionTo(next) {
		o.OrderStatus = next
		return nil
	}
	if next == StatusCancelled {
		return fmt.Errorf("%w: order %s is %s", ErrInvalidCancellation, o.ID, o.OrderStatus)
	}
	return fmt.Errorf("%w: order %s cannot go from %s to %s", ErrInvalidTransition, o.ID, o.OrderStatus, next)
}

// Confirm records a successful charge.
func (o *Order) Confirm(paymentID string) error {
	if err := o.TransitionTo(StatusConfirmed); err != nil {
		return err
	}
	o.PaymentStatus = PaymentPaid
	o.PaymentID = paymentID
	return nil
}

// ReservationIDs returns the reservation of every item, in item order.
func (o *Order) ReservationIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if it.ReservationID != "" {
			ids = append(ids, it.ReservationID)
		}
	}
	return ids
}
