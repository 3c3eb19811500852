// Command collaborator-service serves in-memory customer, catalog, inventory
// and payment collaborators over HTTP for the order service to call.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/fulfillment-saga/internal/capability/httpapi"
	"github.com/jcmexdev/fulfillment-saga/internal/capability/memory"
	"github.com/jcmexdev/fulfillment-saga/internal/config"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("collaborator service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadCollaborator()
	if err != nil {
		return err
	}
	telemetry.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerOptions{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: 1,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	seed, err := memory.LoadSeed(cfg.SeedFile)
	if err != nil {
		return err
	}
	var opts []memory.PaymentOption
	if cfg.ChargeLimit.IsPositive() {
		opts = append(opts, memory.WithChargeLimit(cfg.ChargeLimit))
	}
	store := memory.NewStore(seed, opts...)
	slog.Info("seed loaded", "file", cfg.SeedFile,
		"customers", len(seed.Customers), "products", len(seed.Products), "stock_levels", len(seed.Inventory))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	httpapi.NewHandler(store.Customers, store.Catalog, store.Inventory, store.Payments).Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(r, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("collaborator service HTTP running", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		slog.Error("http shutdown error", "error", serr)
	}
	return err
}
