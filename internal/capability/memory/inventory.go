package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
)

var _ capability.Inventory = (*Inventory)(nil)

type reservation struct {
	productID string
	warehouse string
	quantity  int
}

// Inventory keeps stock per product and warehouse. Warehouses are kept in
// insertion order, which is the order GetInventory returns them in.
type Inventory struct {
	mu           sync.Mutex
	levels       map[string][]*capability.StockLevel
	reservations map[string]reservation
	released     map[string]struct{}
}

func NewInventory() *Inventory {
	return &Inventory{
		levels:       make(map[string][]*capability.StockLevel),
		reservations: make(map[string]reservation),
		released:     make(map[string]struct{}),
	}
}

// SetStock creates or overwrites the stock level of a product in a warehouse.
func (i *Inventory) SetStock(productID, warehouse string, onHand, reserved int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if l := i.find(productID, warehouse); l != nil {
		l.OnHand, l.Reserved, l.UpdatedAt = onHand, reserved, time.Now().UTC()
		return
	}
	i.levels[productID] = append(i.levels[productID], &capability.StockLevel{
		ProductID: productID,
		Warehouse: warehouse,
		OnHand:    onHand,
		Reserved:  reserved,
		UpdatedAt: time.Now().UTC(),
	})
}

func (i *Inventory) find(productID, warehouse string) *capability.StockLevel {
	for _, l := range i.levels[productID] {
		if l.Warehouse == warehouse {
			return l
		}
	}
	return nil
}

func (i *Inventory) GetInventory(_ context.Context, productID, warehouse string) ([]capability.StockLevel, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if warehouse != "" {
		l := i.find(productID, warehouse)
		if l == nil {
			return nil, fmt.Errorf("inventory %s@%s: %w", productID, warehouse, capability.ErrNotFound)
		}
		return []capability.StockLevel{*l}, nil
	}

	out := make([]capability.StockLevel, 0, len(i.levels[productID]))
	for _, l := range i.levels[productID] {
		out = append(out, *l)
	}
	return out, nil
}

func (i *Inventory) CheckAvailability(_ context.Context, productID string, quantity int, warehouse string) (bool, string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if warehouse != "" {
		l := i.find(productID, warehouse)
		if l == nil {
			return false, "", nil
		}
		return l.Available() >= quantity, warehouse, nil
	}

	levels := make([]capability.StockLevel, 0, len(i.levels[productID]))
	for _, l := range i.levels[productID] {
		levels = append(levels, *l)
	}
	ok, wh := capability.FirstSufficient(levels, quantity)
	return ok, wh, nil
}

// ReserveStock holds quantity units in the first warehouse that can cover
// them. The check and the hold happen under one lock.
func (i *Inventory) ReserveStock(ctx context.Context, productID, sku string, quantity int) (*capability.Reservation, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, l := range i.levels[productID] {
		if l.Available() < quantity {
			continue
		}
		l.Reserved += quantity
		l.UpdatedAt = time.Now().UTC()

		id := shortID("RES")
		i.reservations[id] = reservation{productID: productID, warehouse: l.Warehouse, quantity: quantity}

		slog.DebugContext(ctx, "stock reserved",
			"reservation_id", id, "product_id", productID, "sku", sku, "warehouse", l.Warehouse, "quantity", quantity)
		return &capability.Reservation{
			Success:       true,
			ReservationID: id,
			Warehouse:     l.Warehouse,
			Quantity:      quantity,
		}, nil
	}

	return &capability.Reservation{
		Success: false,
		Error:   fmt.Sprintf("insufficient stock for product %s", productID),
	}, nil
}

// ReleaseReservation gives the held units back. Releasing an already released
// reservation succeeds again without touching stock.
func (i *Inventory) ReleaseReservation(ctx context.Context, reservationID string) (*capability.Release, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, done := i.released[reservationID]; done {
		return &capability.Release{Success: true, Released: reservationID}, nil
	}

	r, ok := i.reservations[reservationID]
	if !ok {
		slog.WarnContext(ctx, "no reservation found, nothing to release", "reservation_id", reservationID)
		return &capability.Release{Success: false}, nil
	}

	if l := i.find(r.productID, r.warehouse); l != nil {
		l.Reserved -= r.quantity
		l.UpdatedAt = time.Now().UTC()
	}
	delete(i.reservations, reservationID)
	i.released[reservationID] = struct{}{}

	return &capability.Release{Success: true, Released: reservationID}, nil
}

// ActiveReservations reports how many reservations are currently held.
func (i *Inventory) ActiveReservations() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.reservations)
}

// IsReleased reports whether the reservation was handed back.
func (i *Inventory) IsReleased(reservationID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.released[reservationID]
	return ok
}
