// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration. It is loaded once at startup and
// passed into constructors by value; the core packages keep no ambient state.
type Config struct {
	DataDir      string // Base directory for all databases (always absolute)
	BaseCurrency string // Reporting currency for all cross-currency conversions
	LogLevel     string
	Port         int
	DevMode      bool

	// Commission model used for rebalancing trade estimates.
	CommissionFixed decimal.Decimal // Fixed cost per trade (e.g. 2.00)
	CommissionPct   decimal.Decimal // Variable cost as a fraction (e.g. 0.002 = 0.2%)

	// DefaultTaxRate is the capital-gains rate used when a caller does not
	// supply one. Stored as a fraction (0.25 = 25%).
	DefaultTaxRate decimal.Decimal

	// SnapshotSchedule is a cron expression for the daily snapshot job.
	SnapshotSchedule string

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible backup settings. Backups are disabled
// when Bucket is empty.
type BackupConfig struct {
	Bucket    string
	Endpoint  string // Optional custom endpoint (e.g. Cloudflare R2)
	Region    string
	AccessKey string
	SecretKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic:
	// 1. FOLIO_DATA_DIR environment variable
	// 2. Default to ./data
	// Always resolve to absolute path and ensure the directory exists.
	dataDir := getEnv("FOLIO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		BaseCurrency:     getEnv("BASE_CURRENCY", "USD"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Port:             getEnvAsInt("PORT", 8001),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		CommissionFixed:  getEnvAsDecimal("COMMISSION_FIXED", "2"),
		CommissionPct:    getEnvAsDecimal("COMMISSION_PCT", "0.002"),
		DefaultTaxRate:   getEnvAsDecimal("DEFAULT_TAX_RATE", "0.25"),
		SnapshotSchedule: getEnv("SNAPSHOT_SCHEDULE", "0 18 * * 1-5"),
		Backup:           loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DefaultTaxRate.IsNegative() || c.DefaultTaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("DEFAULT_TAX_RATE must be a fraction in [0,1], got %s", c.DefaultTaxRate)
	}
	if c.CommissionPct.IsNegative() {
		return fmt.Errorf("COMMISSION_PCT must not be negative, got %s", c.CommissionPct)
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(defaultValue)
	return d
}

// loadBackupConfig loads S3 backup configuration. Returns nil when no bucket
// is configured, which disables backups.
func loadBackupConfig() *BackupConfig {
	bucket := getEnv("BACKUP_S3_BUCKET", "")
	if bucket == "" {
		return nil
	}
	return &BackupConfig{
		Bucket:    bucket,
		Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:    getEnv("BACKUP_S3_REGION", "auto"),
		AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
		SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
	}
}
