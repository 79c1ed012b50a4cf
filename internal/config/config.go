// Package config provides YAML configuration loading and validation for
// the ledger daemon.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for cmd/ledger-daemon.
type Config struct {
	// EventStoreDriver selects the EventStore backend: "memory", "sqlite",
	// or "postgres". Required.
	EventStoreDriver string `yaml:"eventstore_driver"`

	// Database holds connection parameters for the postgres driver.
	// Ignored for memory and sqlite.
	Database DatabaseConfig `yaml:"database"`

	// SQLitePath is the file path for the sqlite driver ("" or ":memory:"
	// for an in-memory database). Ignored for memory and postgres.
	SQLitePath string `yaml:"sqlite_path"`

	// Anchor configures the periodic Merkle-anchoring scheduler.
	Anchor AnchorConfig `yaml:"anchor"`

	// SystemPrivateKey and SystemPublicKey are the base64-encoded Ed25519
	// service keypair used for bootstrap actions (e.g. genesis editor
	// registration scripts). Both required when Production is true.
	SystemPrivateKey string `yaml:"system_private_key"`
	SystemPublicKey  string `yaml:"system_public_key"`

	// Production toggles strict mode: no ephemeral keys, no insecure
	// defaults. Defaults to false.
	Production bool `yaml:"production"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// LogFormat is "json" or "text". Defaults to "json" when omitted.
	LogFormat string `yaml:"log_format"`

	// HTTPAddr is the listen address for the optional read-only
	// projection HTTP surface (e.g. "127.0.0.1:8080"). Empty disables it.
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds Postgres connection parameters.
type DatabaseConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	Name                  string `yaml:"name"`
	User                  string `yaml:"user"`
	Password              string `yaml:"password"`
	SSLMode               string `yaml:"ssl_mode"`
	PoolMin               int    `yaml:"pool_min"`
	PoolMax               int    `yaml:"pool_max"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
}

// AnchorConfig configures anchor/scheduler.Scheduler.
type AnchorConfig struct {
	Enabled         bool `yaml:"enabled"`
	BatchSize       int  `yaml:"batch_size"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	MinEvents       int  `yaml:"min_events"`
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

var validDrivers = map[string]bool{
	"memory":   true,
	"sqlite":   true,
	"postgres": true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config,
// applies defaults, and validates all required fields. It returns a typed
// error describing every validation failure encountered.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with sensible
// defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "require"
	}
	if cfg.Database.PoolMin == 0 {
		cfg.Database.PoolMin = 1
	}
	if cfg.Database.PoolMax == 0 {
		cfg.Database.PoolMax = 10
	}
	if cfg.Database.ConnectTimeoutSeconds == 0 {
		cfg.Database.ConnectTimeoutSeconds = 10
	}
	if cfg.Anchor.BatchSize == 0 {
		cfg.Anchor.BatchSize = 100
	}
	if cfg.Anchor.IntervalSeconds == 0 {
		cfg.Anchor.IntervalSeconds = 30
	}
	if cfg.Anchor.MinEvents == 0 {
		cfg.Anchor.MinEvents = 10
	}
}

// validate checks that all required fields are populated and that
// enumerated fields contain only valid values.
func validate(cfg *Config) error {
	var errs []error

	if !validDrivers[cfg.EventStoreDriver] {
		errs = append(errs, fmt.Errorf("eventstore_driver %q must be one of: memory, sqlite, postgres", cfg.EventStoreDriver))
	}
	if cfg.EventStoreDriver == "postgres" {
		if cfg.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required when eventstore_driver is postgres"))
		}
		if cfg.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required when eventstore_driver is postgres"))
		}
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if !validLogFormats[cfg.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format %q must be one of: json, text", cfg.LogFormat))
	}
	if cfg.Anchor.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("anchor.batch_size must be positive, got %d", cfg.Anchor.BatchSize))
	}
	if cfg.Anchor.IntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("anchor.interval_seconds must be positive, got %d", cfg.Anchor.IntervalSeconds))
	}

	if cfg.Production {
		if cfg.SystemPrivateKey == "" {
			errs = append(errs, errors.New("system_private_key is required in production"))
		}
		if cfg.SystemPublicKey == "" {
			errs = append(errs, errors.New("system_public_key is required in production"))
		}
	}

	return errors.Join(errs...)
}
