package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Environment string
	ServerPort  int
	LogLevel    string

	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabaseSSLMode  string

	// RedisURL is optional; when empty the effective price cache runs
	// in process memory.
	RedisURL      string
	PriceCacheTTL time.Duration

	DiscountCheckInterval time.Duration

	// CurrencyPrecision maps ISO 4217 codes to minor-unit digits,
	// parsed from CURRENCY_PRECISION ("USD:2,JPY:0,BHD:3").
	CurrencyPrecision map[string]int32

	// MinPricePercent is the floor a discount may never push a final
	// price below, as a percentage of the base price.
	MinPricePercent int

	// AnonymizerSecret keys the token derivation for depersonalized
	// identities. Rotating it breaks token stability across records.
	AnonymizerSecret string

	CORSAllowedOrigins []string
}

// Load reads configuration from the environment, after loading a local
// .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DATABASE_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_PORT: %w", err)
	}

	checkInterval, err := strconv.Atoi(getEnv("DISCOUNT_CHECK_INTERVAL_SECONDS", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISCOUNT_CHECK_INTERVAL_SECONDS: %w", err)
	}
	if checkInterval < 1 {
		return nil, fmt.Errorf("DISCOUNT_CHECK_INTERVAL_SECONDS must be positive")
	}

	cacheTTL, err := strconv.Atoi(getEnv("PRICE_CACHE_TTL_SECONDS", "300"))
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_CACHE_TTL_SECONDS: %w", err)
	}

	minPricePercent, err := strconv.Atoi(getEnv("MIN_PRICE_PERCENT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_PRICE_PERCENT: %w", err)
	}
	if minPricePercent < 0 || minPricePercent > 100 {
		return nil, fmt.Errorf("MIN_PRICE_PERCENT must be between 0 and 100")
	}

	precision, err := parseCurrencyPrecision(getEnv("CURRENCY_PRECISION", "USD:2,EUR:2,GBP:2,JPY:0"))
	if err != nil {
		return nil, err
	}

	secret := os.Getenv("ANONYMIZER_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("ANONYMIZER_SECRET must be set")
	}

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  port,
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseHost:     getEnv("DATABASE_HOST", "localhost"),
		DatabasePort:     dbPort,
		DatabaseUser:     getEnv("DATABASE_USER", "staybook"),
		DatabasePassword: getEnv("DATABASE_PASSWORD", "dev"),
		DatabaseName:     getEnv("DATABASE_NAME", "staybook"),
		DatabaseSSLMode:  getEnv("DATABASE_SSLMODE", "disable"),

		RedisURL:      os.Getenv("REDIS_URL"),
		PriceCacheTTL: time.Duration(cacheTTL) * time.Second,

		DiscountCheckInterval: time.Duration(checkInterval) * time.Second,

		CurrencyPrecision: precision,
		MinPricePercent:   minPricePercent,
		AnonymizerSecret:  secret,

		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),
	}, nil
}

func parseCurrencyPrecision(raw string) (map[string]int32, error) {
	out := map[string]int32{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, digits, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid CURRENCY_PRECISION entry %q", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(digits))
		if err != nil || n < 0 || n > 4 {
			return nil, fmt.Errorf("invalid CURRENCY_PRECISION digits in %q", pair)
		}
		out[strings.ToUpper(strings.TrimSpace(code))] = int32(n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("CURRENCY_PRECISION must list at least one currency")
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
