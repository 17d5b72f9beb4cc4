/*
Package config loads process configuration for the payroll server and CLI.

PURPOSE:
  Reads a .env file when present (missing file is fine), then environment
  variables. Command-line flags in cmd/ override what Load returns.

VARIABLES:
  APP_PORT           HTTP port (default 8080)
  APP_ENV            development | production (default development)
  LOG_LEVEL          debug | info | warn | error (default info)
  DB_DRIVER          sqlite | postgres (default sqlite)
  DB_DSN             sqlite file path or postgres URL (default payroll.db)
  RATES_FILE         JSON or YAML rates document (required to run the engine)
  BATCH_CONCURRENCY  parallel employees in a batch run (default 4)
  BATCH_INTERVAL     scheduled batch recalculation, e.g. 1h (default 0, off)
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Payroll  PayrollConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type PayrollConfig struct {
	RatesFile        string
	BatchConcurrency int
	BatchInterval    time.Duration
}

// Load reads .env from the working directory, then the environment.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with an explicit .env path.
func LoadFrom(envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	config := &Config{}

	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}
	config.App = AppConfig{
		Port:     appPort,
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	config.Database = DatabaseConfig{
		Driver: strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DSN:    getEnv("DB_DSN", "payroll.db"),
	}

	concurrency, err := strconv.Atoi(getEnv("BATCH_CONCURRENCY", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid BATCH_CONCURRENCY: %w", err)
	}
	interval, err := time.ParseDuration(getEnv("BATCH_INTERVAL", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid BATCH_INTERVAL: %w", err)
	}
	config.Payroll = PayrollConfig{
		RatesFile:        getEnv("RATES_FILE", ""),
		BatchConcurrency: concurrency,
		BatchInterval:    interval,
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT must be between 1 and 65535")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.Payroll.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1")
	}
	if c.Payroll.BatchInterval < 0 {
		return fmt.Errorf("BATCH_INTERVAL must not be negative")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
