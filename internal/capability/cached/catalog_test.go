package cached

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/cache"
)

type countingCatalog struct {
	products map[string]capability.Product
	calls    int
}

func (c *countingCatalog) GetProduct(_ context.Context, id string) (*capability.Product, error) {
	c.calls++
	p, ok := c.products[id]
	if !ok {
		return nil, capability.ErrNotFound
	}
	return &p, nil
}

func (c *countingCatalog) GetProductBySKU(_ context.Context, sku string) (*capability.Product, error) {
	c.calls++
	for _, p := range c.products {
		if p.SKU == sku {
			return &p, nil
		}
	}
	return nil, capability.ErrNotFound
}

func newCatalog(t *testing.T) (*Catalog, *countingCatalog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	next := &countingCatalog{products: map[string]capability.Product{
		"P1": {ID: "P1", SKU: "SKU-P1", Name: "Notebook", Price: decimal.RequireFromString("10.00"), IsActive: true},
	}}
	return NewCatalog(next, cache.NewRedisCache(mr.Addr(), "catalog"), time.Minute), next, mr
}

func TestCatalog_ReadThrough(t *testing.T) {
	c, next, mr := newCatalog(t)
	ctx := context.Background()

	first, err := c.GetProduct(ctx, "P1")
	require.NoError(t, err)
	second, err := c.GetProduct(ctx, "P1")
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.True(t, first.Price.Equal(second.Price))
	assert.True(t, mr.Exists("catalog:product:P1"))
	assert.True(t, mr.Exists("catalog:sku:SKU-P1"))

	bySKU, err := c.GetProductBySKU(ctx, "SKU-P1")
	require.NoError(t, err)
	assert.Equal(t, "P1", bySKU.ID)
	assert.Equal(t, 1, next.calls)
}

func TestCatalog_EntriesExpire(t *testing.T) {
	c, next, mr := newCatalog(t)
	ctx := context.Background()

	_, err := c.GetProduct(ctx, "P1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = c.GetProduct(ctx, "P1")
	require.NoError(t, err)

	assert.Equal(t, 2, next.calls)
}

func TestCatalog_NotFoundIsNotCached(t *testing.T) {
	c, next, _ := newCatalog(t)
	ctx := context.Background()

	for range 2 {
		_, err := c.GetProduct(ctx, "P404")
		assert.ErrorIs(t, err, capability.ErrNotFound)
	}
	assert.Equal(t, 2, next.calls)
}

func TestCatalog_BypassesBrokenCache(t *testing.T) {
	c, next, mr := newCatalog(t)
	mr.SetError("server down")

	p, err := c.GetProduct(context.Background(), "P1")

	require.NoError(t, err)
	assert.Equal(t, "P1", p.ID)
	assert.Equal(t, 1, next.calls)
}
