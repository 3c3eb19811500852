// Package capability defines the contracts the order saga uses to talk to the
// outside world: customers, the product catalog, inventory and payments.
//
// Any implementation (networked, in-memory, cached) that satisfies these
// interfaces can be plugged into the orchestrator without changing it.
package capability

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned when a collaborator cannot be reached or
	// answered with an unexpected failure.
	ErrUnavailable = errors.New("capability unavailable")
)

type Customer struct {
	ID        string    `json:"customer_id" yaml:"customer_id"`
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email" yaml:"email"`
	Phone     string    `json:"phone,omitempty" yaml:"phone"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type Product struct {
	ID       string          `json:"product_id" yaml:"product_id"`
	SKU      string          `json:"sku" yaml:"sku"`
	Name     string          `json:"name" yaml:"name"`
	Category string          `json:"category,omitempty" yaml:"category"`
	Price    decimal.Decimal `json:"price" yaml:"price"`
	IsActive bool            `json:"is_active" yaml:"is_active"`
}

// StockLevel is the inventory position of one product in one warehouse.
type StockLevel struct {
	ProductID string    `json:"product_id" yaml:"product_id"`
	Warehouse string    `json:"warehouse" yaml:"warehouse"`
	OnHand    int       `json:"on_hand" yaml:"on_hand"`
	Reserved  int       `json:"reserved" yaml:"reserved"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Available returns the quantity that can still be reserved.
func (s StockLevel) Available() int {
	return s.OnHand - s.Reserved
}

// Reservation is the answer to a reserve request. Success=false is a business
// refusal (not enough stock) and carries the reason in Error.
type Reservation struct {
	Success       bool   `json:"success"`
	ReservationID string `json:"reservation_id,omitempty"`
	Warehouse     string `json:"warehouse,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
	Error         string `json:"error,omitempty"`
}

type Release struct {
	Success  bool   `json:"success"`
	Released string `json:"released,omitempty"`
}

// Payment statuses reported by Charge and Refund.
const (
	PaymentStatusPaid     = "PAID"
	PaymentStatusFailed   = "FAILED"
	PaymentStatusRefunded = "REFUNDED"
)

type Charge struct {
	Success   bool            `json:"success"`
	PaymentID string          `json:"payment_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type Refund struct {
	Success  bool            `json:"success"`
	RefundID string          `json:"refund_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Status   string          `json:"status,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type Customers interface {
	GetCustomer(ctx context.Context, id string) (*Customer, error)
}

type Catalog interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*Product, error)
}

// Inventory owns stock and reservations. ReserveStock must be atomic: two
// concurrent reservations can never both succeed beyond OnHand-Reserved.
type Inventory interface {
	// GetInventory lists stock levels for a product. An empty warehouse means
	// every warehouse, in the collaborator's own order.
	GetInventory(ctx context.Context, productID, warehouse string) ([]StockLevel, error)
	CheckAvailability(ctx context.Context, productID string, quantity int, warehouse string) (bool, string, error)
	ReserveStock(ctx context.Context, productID, sku string, quantity int) (*Reservation, error)
	ReleaseReservation(ctx context.Context, reservationID string) (*Release, error)
}

// Payments must treat Charge as idempotent on idempotencyKey.
type Payments interface {
	Charge(ctx context.Context, orderID string, amount decimal.Decimal, idempotencyKey string) (*Charge, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*Refund, error)
}

// FirstSufficient picks the first warehouse, in the given order, whose
// available quantity covers the request.
func FirstSufficient(levels []StockLevel, quantity int) (bool, string) {
	for _, l := range levels {
		if l.Available() >= quantity {
			return true, l.Warehouse
		}
	}
	return false, ""
}
