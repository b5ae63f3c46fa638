// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for the results database and exports (always absolute)
	ScenarioPath     string // Default scenario file for scheduled and API-triggered runs
	Seed             int64  // Default random seed for simulation runs
	Port             int
	LogLevel         string
	DevMode          bool
	RunSchedule      string // Cron expression for scheduled scenario runs, empty disables them
	MaintainSchedule string // Cron expression for database maintenance
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("MERIDIAN_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		ScenarioPath:     getEnv("MERIDIAN_SCENARIO", ""),
		Seed:             getEnvAsInt64("MERIDIAN_SEED", 0),
		Port:             getEnvAsInt("MERIDIAN_PORT", 8080),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		RunSchedule:      getEnv("MERIDIAN_RUN_SCHEDULE", ""),
		MaintainSchedule: getEnv("MERIDIAN_MAINTAIN_SCHEDULE", "0 0 3 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the path of the results database inside the data
// directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "results.db")
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RunSchedule != "" && c.ScenarioPath == "" {
		return fmt.Errorf("MERIDIAN_RUN_SCHEDULE is set but MERIDIAN_SCENARIO is empty")
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
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
