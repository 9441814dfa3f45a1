package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ANONYMIZER_SECRET", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ServerPort != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.ServerPort)
	}
	if cfg.DiscountCheckInterval != time.Minute {
		t.Errorf("expected 60s check interval, got %s", cfg.DiscountCheckInterval)
	}
	if cfg.MinPricePercent != 10 {
		t.Errorf("expected 10 percent floor, got %d", cfg.MinPricePercent)
	}
	if got := cfg.CurrencyPrecision["JPY"]; got != 0 {
		t.Errorf("expected JPY precision 0, got %d", got)
	}
	if got := cfg.CurrencyPrecision["USD"]; got != 2 {
		t.Errorf("expected USD precision 2, got %d", got)
	}
}

func TestLoadRequiresAnonymizerSecret(t *testing.T) {
	t.Setenv("ANONYMIZER_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without ANONYMIZER_SECRET")
	}
}

func TestLoadParsesCurrencyPrecision(t *testing.T) {
	setRequired(t)
	t.Setenv("CURRENCY_PRECISION", "usd:2, bhd:3 ,JPY:0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.CurrencyPrecision["BHD"]; got != 3 {
		t.Errorf("expected BHD precision 3, got %d", got)
	}
	if got := cfg.CurrencyPrecision["USD"]; got != 2 {
		t.Errorf("expected USD precision 2, got %d", got)
	}
}

func TestLoadRejectsBadCurrencyPrecision(t *testing.T) {
	setRequired(t)
	t.Setenv("CURRENCY_PRECISION", "USD=2")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed CURRENCY_PRECISION")
	}
}

func TestLoadRejectsOutOfRangeFloor(t *testing.T) {
	setRequired(t)
	t.Setenv("MIN_PRICE_PERCENT", "150")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for MIN_PRICE_PERCENT above 100")
	}
}
