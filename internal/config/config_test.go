package config

import (
	"log/slog"
	"slices"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.Addr() != "0.0.0.0:8080" {
		t.Errorf("unexpected addr %q", cfg.HTTP.Addr())
	}
	if !cfg.Market.CommissionRate.Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("unexpected commission rate %s", cfg.Market.CommissionRate)
	}
	if cfg.Notifications.Topic != "notifications" {
		t.Errorf("unexpected topic %q", cfg.Notifications.Topic)
	}
	if cfg.Braintree.Enabled() {
		t.Error("expected braintree to be disabled without credentials")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("MARKET_COMMISSION_RATE", "0.15")
	t.Setenv("MARKET_MIN_PAYOUT", "25.50")
	t.Setenv("BRAINTREE_MERCHANT_ID", "merchant")
	t.Setenv("BRAINTREE_PUBLIC_KEY", "public")
	t.Setenv("BRAINTREE_PRIVATE_KEY", "private")
	t.Setenv("HTTP_PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !slices.Equal(cfg.KafkaBrokers, []string{"kafka-1:9092", "kafka-2:9092"}) {
		t.Errorf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if !cfg.Market.CommissionRate.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("unexpected commission rate %s", cfg.Market.CommissionRate)
	}
	if !cfg.Market.MinPayout.Equal(decimal.RequireFromString("25.50")) {
		t.Errorf("unexpected min payout %s", cfg.Market.MinPayout)
	}
	if !cfg.Braintree.Enabled() {
		t.Error("expected braintree to be enabled")
	}
	if cfg.HTTP.Addr() != "0.0.0.0:9000" {
		t.Errorf("unexpected addr %q", cfg.HTTP.Addr())
	}
}

func TestLoadRejectsCommissionOutOfRange(t *testing.T) {
	for _, rate := range []string{"-0.01", "1.5"} {
		t.Setenv("MARKET_COMMISSION_RATE", rate)
		if _, err := Load(); err == nil {
			t.Errorf("expected an error for rate %s", rate)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := (Log{Level: tt.level}).SlogLevel(); got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.level, tt.want, got)
		}
	}
}
