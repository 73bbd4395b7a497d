package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type AppConfig struct {
	SourceDir    string
	DatabasePath string
	LogLevel     string

	// HomeCurrency is the currency all ledger amounts are carried in.
	// ConversionRate converts foreign-currency export amounts into it. A single
	// rate for the whole run is a documented simplification; per-date rates are
	// not specified by the broker exports this tool consumes.
	HomeCurrency   string
	ConversionRate decimal.Decimal

	// ExchangeTimezone is the exchange's local zone; every event timestamp is
	// normalized into it at the ingestion boundary.
	ExchangeTimezone string
	exchangeLoc      *time.Location

	// Near-the-money assignment heuristic. Band is the close-to-strike
	// distance (home of the "a few dollars" guard), MinOptionClose the option
	// price below which a near-strike close is still treated as worthless.
	NearMoneyBand  decimal.Decimal
	MinOptionClose decimal.Decimal
	PlugTolerance  decimal.Decimal

	PriceLookupTimeout time.Duration
	PriceLookupRetries int
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	priceTimeoutStr := getEnv("PRICE_LOOKUP_TIMEOUT", "20s")
	priceTimeout, err := time.ParseDuration(priceTimeoutStr)
	if err != nil {
		log.Printf("WARNING: Invalid PRICE_LOOKUP_TIMEOUT format '%s'. Using default 20s. Error: %v", priceTimeoutStr, err)
		priceTimeout = 20 * time.Second
	}

	Cfg = &AppConfig{
		SourceDir:    getEnv("SOURCE_DIR", "./exports"),
		DatabasePath: getEnv("DATABASE_PATH", "./navledger.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		HomeCurrency:   getEnv("HOME_CURRENCY", "HKD"),
		ConversionRate: getEnvAsDecimal("CONVERSION_RATE", "7.8472"),

		ExchangeTimezone: getEnv("EXCHANGE_TIMEZONE", "America/New_York"),

		NearMoneyBand:  getEnvAsDecimal("NEAR_MONEY_BAND", "3"),
		MinOptionClose: getEnvAsDecimal("MIN_OPTION_CLOSE", "0.10"),
		PlugTolerance:  getEnvAsDecimal("PLUG_TOLERANCE", "0.01"),

		PriceLookupTimeout: priceTimeout,
		PriceLookupRetries: getEnvAsInt("PRICE_LOOKUP_RETRIES", 3),
	}

	loc, err := time.LoadLocation(Cfg.ExchangeTimezone)
	if err != nil {
		log.Fatalf("FATAL: Invalid EXCHANGE_TIMEZONE '%s': %v", Cfg.ExchangeTimezone, err)
	}
	Cfg.exchangeLoc = loc

	if Cfg.ConversionRate.LessThanOrEqual(decimal.Zero) {
		log.Fatalf("FATAL: CONVERSION_RATE must be positive, got %s", Cfg.ConversionRate)
	}

	log.Printf("Configuration loaded: SourceDir=%s, DBPath=%s, LogLevel=%s, HomeCurrency=%s, Rate=%s",
		Cfg.SourceDir, Cfg.DatabasePath, Cfg.LogLevel, Cfg.HomeCurrency, Cfg.ConversionRate)
}

// ExchangeLocation returns the exchange's local time zone.
func (c *AppConfig) ExchangeLocation() *time.Location {
	return c.exchangeLoc
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Integer value for %s not set or empty, using default: %d", key, fallback)
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsDecimal(key, fallback string) decimal.Decimal {
	valueStr := getEnv(key, fallback)
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		log.Printf("Invalid decimal value for %s ('%s'), using default: %s", key, valueStr, fallback)
		value, _ = decimal.NewFromString(fallback)
	}
	return value
}
