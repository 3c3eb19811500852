package fallback

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
)

var (
	_ capability.Customers = (*Customers)(nil)
	_ capability.Catalog   = (*Catalog)(nil)
	_ capability.Inventory = (*Inventory)(nil)
	_ capability.Payments  = (*Payments)(nil)
)

type Customers struct {
	f *Fallback[capability.Customers]
}

func NewCustomers(preferred, fallback capability.Customers, policy Policy) *Customers {
	return &Customers{f: New("CustomerService", preferred, fallback, policy)}
}

func (c *Customers) GetCustomer(ctx context.Context, id string) (*capability.Customer, error) {
	return Call(ctx, c.f, "GetCustomer", func(impl capability.Customers) (*capability.Customer, error) {
		return impl.GetCustomer(ctx, id)
	})
}

type Catalog struct {
	f *Fallback[capability.Catalog]
}

func NewCatalog(preferred, fallback capability.Catalog, policy Policy) *Catalog {
	return &Catalog{f: New("CatalogService", preferred, fallback, policy)}
}

func (c *Catalog) GetProduct(ctx context.Context, id string) (*capability.Product, error) {
	return Call(ctx, c.f, "GetProduct", func(impl capability.Catalog) (*capability.Product, error) {
		return impl.GetProduct(ctx, id)
	})
}

func (c *Catalog) GetProductBySKU(ctx context.Context, sku string) (*capability.Product, error) {
	return Call(ctx, c.f, "GetProductBySKU", func(impl capability.Catalog) (*capability.Product, error) {
		return impl.GetProductBySKU(ctx, sku)
	})
}

type Inventory struct {
	f *Fallback[capability.Inventory]
}

func NewInventory(preferred, fallback capability.Inventory, policy Policy) *Inventory {
	return &Inventory{f: New("InventoryService", preferred, fallback, policy)}
}

func (i *Inventory) GetInventory(ctx context.Context, productID, warehouse string) ([]capability.StockLevel, error) {
	return Call(ctx, i.f, "GetInventory", func(impl capability.Inventory) ([]capability.StockLevel, error) {
		return impl.GetInventory(ctx, productID, warehouse)
	})
}

type availability struct {
	ok        bool
	warehouse string
}

func (i *Inventory) CheckAvailability(ctx context.Context, productID string, quantity int, warehouse string) (bool, string, error) {
	res, err := Call(ctx, i.f, "CheckAvailability", func(impl capability.Inventory) (availability, error) {
		ok, wh, err := impl.CheckAvailability(ctx, productID, quantity, warehouse)
		return availability{ok: ok, warehouse: wh}, err
	})
	return res.ok, res.warehouse, err
}

func (i *Inventory) ReserveStock(ctx context.Context, productID, sku string, quantity int) (*capability.Reservation, error) {
	return Call(ctx, i.f, "ReserveStock", func(impl capability.Inventory) (*capability.Reservation, error) {
		return impl.ReserveStock(ctx, productID, sku, quantity)
	})
}

func (i *Inventory) ReleaseReservation(ctx context.Context, reservationID string) (*capability.Release, error) {
	return Call(ctx, i.f, "ReleaseReservation", func(impl capability.Inventory) (*capability.Release, error) {
		return impl.ReleaseReservation(ctx, reservationID)
	})
}

type Payments struct {
	f *Fallback[capability.Payments]
}

func NewPayments(preferred, fallback capability.Payments, policy Policy) *Payments {
	return &Payments{f: New("PaymentService", preferred, fallback, policy)}
}

func (p *Payments) Charge(ctx context.Context, orderID string, amount decimal.Decimal, idempotencyKey string) (*capability.Charge, error) {
	return Call(ctx, p.f, "Charge", func(impl capability.Payments) (*capability.Charge, error) {
		return impl.Charge(ctx, orderID, amount, idempotencyKey)
	})
}

func (p *Payments) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*capability.Refund, error) {
	return Call(ctx, p.f, "Refund", func(impl capability.Payments) (*capability.Refund, error) {
		return impl.Refund(ctx, paymentID, amount)
	})
}
