package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Log         Log
	HTTP        HTTPServer
	Telemetry   Telemetry

	PostgresURL     string   `env:"POSTGRES_URL"`
	MigrationsPath  string   `env:"MIGRATIONS_PATH" envDefault:"file://migrations"`
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	EmailServiceURL string   `env:"EMAIL_SERVICE_URL"`

	Notifications Notifications `envPrefix:"NOTIFICATIONS_"`
	Market        Market        `envPrefix:"MARKET_"`
	Paypal        Paypal        `envPrefix:"PAYPAL_"`
	Braintree     Braintree     `envPrefix:"BRAINTREE_"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

func (h HTTPServer) Addr() string {
	return h.Host + ":" + h.Port
}

type Telemetry struct {
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"0.1.0"`
	TracingEnabled bool   `env:"OTEL_TRACING_ENABLED" envDefault:"true"`
}

type Notifications struct {
	Topic   string `env:"TOPIC" envDefault:"notifications"`
	GroupID string `env:"GROUP_ID" envDefault:"notification-worker"`
}

type Market struct {
	CommissionRate decimal.Decimal `env:"COMMISSION_RATE" envDefault:"0.20"`
	MinPayout      decimal.Decimal `env:"MIN_PAYOUT" envDefault:"10.00"`
	Currency       string          `env:"CURRENCY" envDefault:"USD"`
	AdminEmail     string          `env:"ADMIN_EMAIL" envDefault:"admin@example.com"`
	PublicBaseURL  string          `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
}

type Paypal struct {
	BaseApiURL   string `env:"BASE_API_URL" envDefault:"https://api-m.sandbox.paypal.com"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	WebhookID    string `env:"WEBHOOK_ID"`
}

type Braintree struct {
	Environment string `env:"ENVIRONMENT" envDefault:"sandbox"`
	MerchantID  string `env:"MERCHANT_ID"`
	PublicKey   string `env:"PUBLIC_KEY"`
	PrivateKey  string `env:"PRIVATE_KEY"`
}

func (b Braintree) Enabled() bool {
	return b.MerchantID != "" && b.PublicKey != "" && b.PrivateKey != ""
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Market.CommissionRate.IsNegative() || cfg.Market.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("MARKET_COMMISSION_RATE must be within [0, 1], got %s", cfg.Market.CommissionRate)
	}

	return cfg, nil
}

func (l Log) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
