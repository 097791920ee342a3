// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/graham/internal/definition"
	"github.com/aristath/graham/internal/modules/export"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	DefinitionPath string // Definition re-run by the scheduled backtest job
	Schedule       string // Cron spec for the scheduled backtest; empty disables
	RatesSchedule  string // Cron spec for the rate refresh; empty disables

	BCB    BCBConfig
	Export ExportConfig
	Run    definition.Defaults
}

// BCBConfig configures the rate series client
type BCBConfig struct {
	BaseURL           string
	Series            string
	RequestsPerSecond float64
}

// ExportConfig configures run export. S3 upload is enabled when a bucket is set.
type ExportConfig struct {
	Dir      string
	S3Prefix string
	S3       export.S3Config
}

// S3Enabled reports whether exports are uploaded
func (c ExportConfig) S3Enabled() bool {
	return c.S3.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("GRAHAM_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	run := definition.StandardDefaults()
	cfg := &Config{
		DataDir:        absDataDir,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnvAsInt("GO_PORT", 8001),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		DefinitionPath: getEnv("GRAHAM_DEFINITION", ""),
		Schedule:       getEnv("GRAHAM_SCHEDULE", ""),
		RatesSchedule:  getEnv("GRAHAM_RATES_SCHEDULE", "0 6 * * *"),
		BCB: BCBConfig{
			BaseURL:           getEnv("BCB_BASE_URL", "https://api.bcb.gov.br/dados/serie"),
			Series:            getEnv("BCB_SERIES", run.RateSeries),
			RequestsPerSecond: getEnvAsFloat("BCB_REQUESTS_PER_SECOND", 2),
		},
		Export: ExportConfig{
			Dir:      getEnv("EXPORT_DIR", filepath.Join(absDataDir, "exports")),
			S3Prefix: getEnv("EXPORT_S3_PREFIX", "graham"),
			S3: export.S3Config{
				Bucket:    getEnv("EXPORT_S3_BUCKET", ""),
				Region:    getEnv("AWS_REGION", "us-east-1"),
				AccessKey: getEnv("EXPORT_S3_ACCESS_KEY", ""),
				SecretKey: getEnv("EXPORT_S3_SECRET_KEY", ""),
				Endpoint:  getEnv("EXPORT_S3_ENDPOINT", ""),
			},
		},
		Run: definition.Defaults{
			SafetyMargin:      getEnvAsFloat("GRAHAM_SAFETY_MARGIN", run.SafetyMargin),
			InitialCapital:    getEnvAsFloat("GRAHAM_INITIAL_CAPITAL", run.InitialCapital),
			MinCashMultiplier: getEnvAsFloat("GRAHAM_MIN_CASH_MULTIPLIER", run.MinCashMultiplier),
			DividendMode:      strings.ToLower(getEnv("GRAHAM_DIVIDEND_MODE", run.DividendMode)),
			CacheMode:         strings.ToLower(getEnv("GRAHAM_CACHE_MODE", run.CacheMode)),
		},
	}
	cfg.Run.RateSeries = cfg.BCB.Series

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// HistoryPath is the market data store
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// LedgerPath is the run ledger
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT %d", c.Port)
	}
	if c.Run.SafetyMargin <= 0 || c.Run.SafetyMargin >= 1 {
		return fmt.Errorf("GRAHAM_SAFETY_MARGIN must be in (0, 1), got %v", c.Run.SafetyMargin)
	}
	if c.Run.InitialCapital <= 0 {
		return fmt.Errorf("GRAHAM_INITIAL_CAPITAL must be positive, got %v", c.Run.InitialCapital)
	}
	if c.Run.MinCashMultiplier < 0 {
		return fmt.Errorf("GRAHAM_MIN_CASH_MULTIPLIER must not be negative, got %v", c.Run.MinCashMultiplier)
	}
	switch c.Run.DividendMode {
	case "cash", "reinvest":
	default:
		return fmt.Errorf("unknown GRAHAM_DIVIDEND_MODE %q", c.Run.DividendMode)
	}
	switch c.Run.CacheMode {
	case "year", "day", "off":
	default:
		return fmt.Errorf("unknown GRAHAM_CACHE_MODE %q", c.Run.CacheMode)
	}
	for key, spec := range map[string]string{"GRAHAM_SCHEDULE": c.Schedule, "GRAHAM_RATES_SCHEDULE": c.RatesSchedule} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, spec, err)
		}
	}
	if c.Schedule != "" && c.DefinitionPath == "" {
		return fmt.Errorf("GRAHAM_SCHEDULE requires GRAHAM_DEFINITION")
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
