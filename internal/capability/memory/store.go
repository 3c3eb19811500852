// Package memory provides in-process implementations of every capability.
// They back the fallback path of the order service and the stub collaborator
// service, and are safe for concurrent use.
package memory

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
)

// Seed is the initial data set for a Store.
type Seed struct {
	Customers []capability.Customer   `yaml:"customers"`
	Products  []capability.Product    `yaml:"products"`
	Inventory []capability.StockLevel `yaml:"inventory"`
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memory: read seed %q: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("memory: parse seed %q: %w", path, err)
	}
	return &seed, nil
}

// Store bundles one implementation of each capability.
type Store struct {
	Customers *Customers
	Catalog   *Catalog
	Inventory *Inventory
	Payments  *Payments
}

func NewStore(seed *Seed, opts ...PaymentOption) *Store {
	s := &Store{
		Customers: NewCustomers(),
		Catalog:   NewCatalog(),
		Inventory: NewInventory(),
		Payments:  NewPayments(opts...),
	}
	if seed == nil {
		return s
	}
	for _, c := range seed.Customers {
		s.Customers.Add(c)
	}
	for _, p := range seed.Products {
		s.Catalog.Add(p)
	}
	for _, l := range seed.Inventory {
		s.Inventory.SetStock(l.ProductID, l.Warehouse, l.OnHand, l.Reserved)
	}
	return s
}

// shortID builds identifiers like RES-3f2a9c0d1b4e.
func shortID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
