package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
	"github.com/jcmexdev/fulfillment-saga/internal/capability/httpapi"
)

var (
	_ capability.Customers = (*Customers)(nil)
	_ capability.Catalog   = (*Catalog)(nil)
	_ capability.Inventory = (*Inventory)(nil)
	_ capability.Payments  = (*Payments)(nil)
)

type Customers struct{ c *client }

func NewCustomers(baseURL string, opts ...Option) *Customers {
	return &Customers{c: newClient("customer-service", baseURL, opts...)}
}

func (s *Customers) GetCustomer(ctx context.Context, id string) (*capability.Customer, error) {
	var out capability.Customer
	if err := s.c.get(ctx, "/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type Catalog struct{ c *client }

func NewCatalog(baseURL string, opts ...Option) *Catalog {
	return &Catalog{c: newClient("catalog-service", baseURL, opts...)}
}

func (s *Catalog) GetProduct(ctx context.Context, id string) (*capability.Product, error) {
	var out capability.Product
	if err := s.c.get(ctx, "/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Catalog) GetProductBySKU(ctx context.Context, sku string) (*capability.Product, error) {
	var out capability.Product
	if err := s.c.get(ctx, "", url.Values{"sku": {sku}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type Inventory struct{ c *client }

func NewInventory(baseURL string, opts ...Option) *Inventory {
	return &Inventory{c: newClient("inventory-service", baseURL, opts...)}
}

func (s *Inventory) GetInventory(ctx context.Context, productID, warehouse string) ([]capability.StockLevel, error) {
	var query url.Values
	if warehouse != "" {
		query = url.Values{"warehouse": {warehouse}}
	}
	var out []capability.StockLevel
	if err := s.c.get(ctx, "/"+url.PathEscape(productID), query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckAvailability is computed from GetInventory; the remote service has no
// dedicated endpoint.
func (s *Inventory) CheckAvailability(ctx context.Context, productID string, quantity int, warehouse string) (bool, string, error) {
	levels, err := s.GetInventory(ctx, productID, warehouse)
	if warehouse != "" && errors.Is(err, capability.ErrNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	ok, wh := capability.FirstSufficient(levels, quantity)
	return ok, wh, nil
}

func (s *Inventory) ReserveStock(ctx context.Context, productID, sku string, quantity int) (*capability.Reservation, error) {
	var out capability.Reservation
	req := httpapi.ReserveRequest{ProductID: productID, SKU: sku, Quantity: quantity}
	if err := s.c.do(ctx, http.MethodPost, "/reserve", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Inventory) ReleaseReservation(ctx context.Context, reservationID string) (*capability.Release, error) {
	var out capability.Release
	if err := s.c.do(ctx, http.MethodDelete, "/reserve/"+url.PathEscape(reservationID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type Payments struct{ c *client }

func NewPayments(baseURL string, opts ...Option) *Payments {
	return &Payments{c: newClient("payment-service", baseURL, opts...)}
}

func (s *Payments) Charge(ctx context.Context, orderID string, amount decimal.Decimal, idempotencyKey string) (*capability.Charge, error) {
	var out capability.Charge
	req := httpapi.ChargeRequest{OrderID: orderID, Amount: amount, IdempotencyKey: idempotencyKey}
	if err := s.c.do(ctx, http.MethodPost, "/charge", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Payments) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*capability.Refund, error) {
	var out capability.Refund
	req := httpapi.RefundRequest{PaymentID: paymentID, Amount: amount}
	if err := s.c.do(ctx, http.MethodPost, "/refund", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
