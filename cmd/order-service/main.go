package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/jcmexdev/fulfillment-saga/internal/config"
	"github.com/jcmexdev/fulfillment-saga/internal/coordinator/sagalog/gormstore"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/app"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/httpx"
	"github.com/jcmexdev/fulfillment-saga/internal/order-service/repository"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/database"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/events"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/interceptors"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("order service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
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
		SampleRatio: cfg.SampleRatio,
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

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := repository.Migrate(db); err != nil {
		return err
	}

	sagaDB, err := database.Open(cfg.SagaLogDriver, cfg.SagaLogDSN)
	if err != nil {
		return err
	}
	defer database.Close(sagaDB)
	sagaLog, err := gormstore.New(sagaDB)
	if err != nil {
		return err
	}

	caps, err := buildCapabilities(cfg)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	svc := app.NewService(repository.New(db), caps,
		app.WithSagaLog(sagaLog),
		app.WithPublisher(publisher),
		app.WithTaxRate(cfg.TaxRate),
		app.WithDefaultShipping(cfg.DefaultShipping),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpx.NewRouter(httpx.NewHandler(svc)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(interceptors.TraceServerInterceptor()),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 2)
	go func() {
		slog.Info("order service gRPC running", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()
	go func() {
		slog.Info("order service HTTP running", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err = <-errCh:
		slog.Error("server failed, shutting down", "error", err)
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		slog.Error("http shutdown error", "error", serr)
	}
	grpcServer.GracefulStop()
	return err
}

func newPublisher(cfg *config.Config) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		slog.Info("no kafka brokers configured, order events are not published")
		return events.Noop{}, nil
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.ServiceName)
}
