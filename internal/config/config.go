// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     int
	LogLevel string
	DevMode  bool

	// SyncMode forces every optimization request to run synchronously with
	// deterministic seeding. Used by automated test suites to avoid real
	// network/quantum calls.
	SyncMode bool

	// LocalOnly excludes network-backed tiers (hardware, remote simulator)
	// from fallback plans so no remote quota is consumed.
	LocalOnly bool

	// Remote quantum runtime gateway. When RuntimeURL is empty the network
	// tiers are configured but probe as unavailable.
	RuntimeURL   string
	RuntimeToken string

	// Estimated cost per measurement shot on remote tiers.
	PricePerShot float64

	// Cron expression for periodic backend availability re-probing.
	ProbeSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnvAsInt("QPO_PORT", 8010),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		SyncMode:      getEnvAsBool("QPO_SYNC_MODE", false),
		LocalOnly:     getEnvAsBool("QPO_LOCAL_ONLY", false),
		RuntimeURL:    getEnv("QPO_RUNTIME_URL", ""),
		RuntimeToken:  getEnv("QPO_RUNTIME_TOKEN", ""),
		PricePerShot:  getEnvAsFloat("QPO_PRICE_PER_SHOT", 1e-4),
		ProbeSchedule: getEnv("QPO_PROBE_SCHEDULE", "@every 1m"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.PricePerShot < 0 {
		return fmt.Errorf("price per shot must not be negative")
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
