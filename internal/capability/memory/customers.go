package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
)

var (
	_ capability.Customers = (*Customers)(nil)
	_ capability.Catalog   = (*Catalog)(nil)
)

type Customers struct {
	mu        sync.RWMutex
	customers map[string]capability.Customer
}

func NewCustomers() *Customers {
	return &Customers{customers: make(map[string]capability.Customer)}
}

func (c *Customers) Add(customer capability.Customer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customers[customer.ID] = customer
}

func (c *Customers) GetCustomer(_ context.Context, id string) (*capability.Customer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	customer, ok := c.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, capability.ErrNotFound)
	}
	return &customer, nil
}

type Catalog struct {
	mu    sync.RWMutex
	byID  map[string]capability.Product
	bySKU map[string]string
}

func NewCatalog() *Catalog {
	return &Catalog{
		byID:  make(map[string]capability.Product),
		bySKU: make(map[string]string),
	}
}

func (c *Catalog) Add(p capability.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[p.ID] = p
	c.bySKU[p.SKU] = p.ID
}

func (c *Catalog) GetProduct(_ context.Context, id string) (*capability.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, capability.ErrNotFound)
	}
	return &p, nil
}

func (c *Catalog) GetProductBySKU(_ context.Context, sku string) (*capability.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.bySKU[sku]
	if !ok {
		return nil, fmt.Errorf("product sku %s: %w", sku, capability.ErrNotFound)
	}
	p := c.byID[id]
	return &p, nil
}
