// Package config provides configuration management for ledger-bridge.
// Secrets and paths come from environment variables and .env files; the
// budget topology comes from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Ledger   LedgerConfig
	DBPath   string
	Rates    string
	Topology string
	Debug    bool
}

// LedgerConfig represents budgeting service API configuration.
type LedgerConfig struct {
	APIURL         string
	AccessToken    string
	TimeoutSeconds int
}

// Load loads configuration from environment variables.
// It automatically loads .env from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	timeout, err := parseIntEnv("LEDGER_API_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid LEDGER_API_TIMEOUT_SECONDS: %w", err)
	}

	config := &Config{
		Ledger: LedgerConfig{
			APIURL:         getEnvOrDefault("LEDGER_API_URL", "http://localhost:8080"),
			AccessToken:    os.Getenv("LEDGER_ACCESS_TOKEN"),
			TimeoutSeconds: timeout,
		},
		DBPath:   getEnvOrDefault("BRIDGE_DB_PATH", "./data/ledger-bridge.db"),
		Rates:    getEnvOrDefault("BRIDGE_RATES_PATH", "./config/rates.yaml"),
		Topology: getEnvOrDefault("BRIDGE_TOPOLOGY_PATH", "./config/topology.yaml"),
		Debug:    os.Getenv("DEBUG") == "true",
	}

	return config, nil
}

// Validate checks that the named fields are set. Known names: ledger.apiUrl,
// ledger.accessToken, dbPath, rates, topology.
func (c *Config) Validate(required ...string) error {
	var missing []string

	for _, name := range required {
		var value string
		switch name {
		case "ledger.apiUrl":
			value = c.Ledger.APIURL
		case "ledger.accessToken":
			value = c.Ledger.AccessToken
		case "dbPath":
			value = c.DBPath
		case "rates":
			value = c.Rates
		case "topology":
			value = c.Topology
		}

		if value == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an int from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}

	return parsed, nil
}
