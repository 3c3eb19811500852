// Package cached wraps the catalog capability with a read-through cache.
// Only successful lookups are cached; a failing cache never fails the call.
//
// Entries are not invalidated when the catalog changes. A product keeps its
// cached price and IsActive flag for up to the TTL, so a product deactivated
// upstream can still be ordered until its entry expires. Keep the TTL short
// where that window matters.
package cached

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/cache"
)

const (
	kindProduct = "product"
	kindSKU     = "sku"
)

var _ capability.Catalog = (*Catalog)(nil)

type Catalog struct {
	next  capability.Catalog
	cache cache.Cache
	ttl   time.Duration
}

func NewCatalog(next capability.Catalog, c cache.Cache, ttl time.Duration) *Catalog {
	return &Catalog{next: next, cache: c, ttl: ttl}
}

func (c *Catalog) GetProduct(ctx context.Context, id string) (*capability.Product, error) {
	return c.lookup(ctx, c.cache.GenerateKey(kindProduct, id), func() (*capability.Product, error) {
		return c.next.GetProduct(ctx, id)
	})
}

func (c *Catalog) GetProductBySKU(ctx context.Context, sku string) (*capability.Product, error) {
	return c.lookup(ctx, c.cache.GenerateKey(kindSKU, sku), func() (*capability.Product, error) {
		return c.next.GetProductBySKU(ctx, sku)
	})
}

func (c *Catalog) lookup(ctx context.Context, key string, load func() (*capability.Product, error)) (*capability.Product, error) {
	raw, found, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		slog.WarnContext(ctx, "catalog cache read failed, bypassing", "key", key, "error", err)
	case found:
		var p capability.Product
		if err := json.Unmarshal(raw, &p); err == nil {
			return &p, nil
		}
		slog.WarnContext(ctx, "discarding corrupt catalog cache entry", "key", key)
	}

	p, err := load()
	if err != nil {
		return nil, err
	}

	c.store(ctx, p)
	return p, nil
}

// store writes the product under both its id and its sku key.
func (c *Catalog) store(ctx context.Context, p *capability.Product) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	for _, key := range []string{c.cache.GenerateKey(kindProduct, p.ID), c.cache.GenerateKey(kindSKU, p.SKU)} {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			slog.WarnContext(ctx, "catalog cache write failed", "key", key, "error", err)
		}
	}
}
