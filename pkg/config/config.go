// Package config loads server configuration from environment variables,
// optionally overlaid by a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Registry backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config holds server configuration.
type Config struct {
	Port            string `yaml:"port"`
	LogLevel        string `yaml:"log_level"`
	IssuerID        string `yaml:"issuer_id"`
	RegistryBackend string `yaml:"registry_backend"`
	SQLitePath      string `yaml:"sqlite_path"`
	RateLimitRPS    int    `yaml:"rate_limit_rps"`
	RateLimitBurst  int    `yaml:"rate_limit_burst"`
	OTLPEndpoint    string `yaml:"otlp_endpoint"`
	TelemetryOn     bool   `yaml:"telemetry_enabled"`
	SeedDemoData    bool   `yaml:"seed_demo_data"`
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	cfg := &Config{
		Port:            getenv("PORT", "8080"),
		LogLevel:        getenv("LOG_LEVEL", "INFO"),
		IssuerID:        getenv("ISSUER_ID", "flexproof-local"),
		RegistryBackend: getenv("REGISTRY_BACKEND", BackendMemory),
		SQLitePath:      getenv("SQLITE_PATH", "data/registry.db"),
		RateLimitRPS:    getenvInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst:  getenvInt("RATE_LIMIT_BURST", 40),
		OTLPEndpoint:    getenv("OTLP_ENDPOINT", "localhost:4317"),
		TelemetryOn:     os.Getenv("TELEMETRY_ENABLED") == "true",
		SeedDemoData:    os.Getenv("SEED_DEMO_DATA") == "true",
	}
	return cfg
}

// LoadFile loads env config, then overlays values from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided path
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks internally consistent settings.
func (c *Config) Validate() error {
	switch c.RegistryBackend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unsupported registry backend %q", c.RegistryBackend)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive, got rps=%d burst=%d", c.RateLimitRPS, c.RateLimitBurst)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
