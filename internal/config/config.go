// Package config loads service configuration from the environment, after
// reading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/fulfillment-saga/internal/pkg/database"
)

// Capability configures one collaborator: where its networked
// implementation lives and how the fallback wrapper routes calls.
type Capability struct {
	URL           string `envconfig:"URL"`
	UsePreferred  bool   `envconfig:"USE_PREFERRED" default:"true"`
	AllowFallback bool   `envconfig:"ALLOW_FALLBACK" default:"true"`
}

// Preferred reports whether calls should try the networked implementation
// first. Without a URL there is nothing to prefer.
func (c Capability) Preferred() bool {
	return c.UsePreferred && c.URL != ""
}

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	GRPCPort    string `envconfig:"GRPC_PORT" default:"9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"APP_ENV" default:"local"`

	DBDriver      string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN         string `envconfig:"DB_DSN" default:"./data/orders.db"`
	SagaLogDriver string `envconfig:"SAGALOG_DRIVER" default:"sqlite"`
	SagaLogDSN    string `envconfig:"SAGALOG_DSN" default:"./data/saga.db"`

	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	CatalogCacheTTL time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"5m"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"order-events"`

	Customer  Capability `envconfig:"CUSTOMER"`
	Catalog   Capability `envconfig:"CATALOG"`
	Inventory Capability `envconfig:"INVENTORY"`
	Payment   Capability `envconfig:"PAYMENT"`

	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	// SeedFile feeds the in-memory fallback collaborators.
	SeedFile string `envconfig:"SEED_FILE"`

	TaxRate         decimal.Decimal `envconfig:"TAX_RATE" default:"0"`
	DefaultShipping decimal.Decimal `envconfig:"DEFAULT_SHIPPING" default:"10.00"`

	ServiceName  string  `envconfig:"OTEL_SERVICE_NAME" default:"order-service"`
	OTLPEndpoint string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SampleRatio  float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
}

// Collaborator is the configuration of the stub collaborator service.
type Collaborator struct {
	Port        string          `envconfig:"PORT" default:"8081"`
	LogLevel    string          `envconfig:"LOG_LEVEL" default:"info"`
	Environment string          `envconfig:"APP_ENV" default:"local"`
	SeedFile    string          `envconfig:"SEED_FILE" default:"./seed.yaml"`
	ChargeLimit decimal.Decimal `envconfig:"PAYMENT_CHARGE_LIMIT" default:"0"`

	ServiceName  string `envconfig:"OTEL_SERVICE_NAME" default:"collaborator-service"`
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadCollaborator() (*Collaborator, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var cfg Collaborator
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	for name, driver := range map[string]string{"DB_DRIVER": c.DBDriver, "SAGALOG_DRIVER": c.SagaLogDriver} {
		if driver != database.DriverSQLite && driver != database.DriverPostgres {
			errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", name, database.DriverSQLite, database.DriverPostgres, driver))
		}
	}
	if c.TaxRate.IsNegative() {
		errs = append(errs, fmt.Errorf("TAX_RATE must not be negative, got %s", c.TaxRate))
	}
	if c.DefaultShipping.IsNegative() {
		errs = append(errs, fmt.Errorf("DEFAULT_SHIPPING must not be negative, got %s", c.DefaultShipping))
	}
	if c.RedisAddr != "" && c.CatalogCacheTTL <= 0 {
		errs = append(errs, errors.New("CATALOG_CACHE_TTL must be positive when REDIS_ADDR is set"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}
