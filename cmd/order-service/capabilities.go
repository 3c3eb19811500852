package main

import (
	"log/slog"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
	"github.com/jcmexdev/fulfillment-saga/internal/capability/cached"
	"github.com/jcmexdev/fulfillment-saga/internal/capability/fallback"
	"github.com/jcmexdev/fulfillment-saga/internal/capability/httpclient"
	"github.com/jcmexdev/fulfillment-saga/internal/capability/memory"
	"github.com/jcmexdev/fulfillment-saga/internal/config"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/app"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/cache"
)

// buildCapabilities pairs each networked collaborator with its in-memory
// fallback, seeded from cfg.SeedFile when set.
func buildCapabilities(cfg *config.Config) (app.Capabilities, error) {
	var seed *memory.Seed
	if cfg.SeedFile != "" {
		s, err := memory.LoadSeed(cfg.SeedFile)
		if err != nil {
			return app.Capabilities{}, err
		}
		seed = s
	}
	local := memory.NewStore(seed)
	opts := []httpclient.Option{httpclient.WithTimeout(cfg.HTTPTimeout)}

	var (
		customers capability.Customers
		catalog   capability.Catalog
		inventory capability.Inventory
		payments  capability.Payments
	)
	if cfg.Customer.URL != "" {
		customers = httpclient.NewCustomers(cfg.Customer.URL, opts...)
	}
	if cfg.Catalog.URL != "" {
		catalog = httpclient.NewCatalog(cfg.Catalog.URL, opts...)
	}
	if cfg.Inventory.URL != "" {
		inventory = httpclient.NewInventory(cfg.Inventory.URL, opts...)
	}
	if cfg.Payment.URL != "" {
		payments = httpclient.NewPayments(cfg.Payment.URL, opts...)
	}

	var productCatalog capability.Catalog = fallback.NewCatalog(catalog, local.Catalog, policy(cfg.Catalog))
	if cfg.RedisAddr != "" {
		productCatalog = cached.NewCatalog(productCatalog, cache.NewRedisCache(cfg.RedisAddr, "catalog"), cfg.CatalogCacheTTL)
	}

	for name, c := range map[string]config.Capability{
		"customer": cfg.Customer, "catalog": cfg.Catalog, "inventory": cfg.Inventory, "payment": cfg.Payment,
	} {
		slog.Info("capability routing", "capability", name, "url", c.URL,
			"use_preferred", c.Preferred(), "allow_fallback", c.AllowFallback)
	}

	return app.Capabilities{
		Customers: fallback.NewCustomers(customers, local.Customers, policy(cfg.Customer)),
		Catalog:   productCatalog,
		Inventory: fallback.NewInventory(inventory, local.Inventory, policy(cfg.Inventory)),
		Payments:  fallback.NewPayments(payments, local.Payments, policy(cfg.Payment)),
	}, nil
}

// policy never prefers a collaborator that has no URL.
func policy(c config.Capability) fallback.Policy {
	return fallback.Policy{UsePreferred: c.Preferred(), AllowFallback: c.AllowFallback}
}
