package invoiceflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration, usually loaded from YAML.
type Config struct {
	Settings `yaml:",inline"`

	Store          StoreConfig         `yaml:"store"`
	Ledger         LedgerConfig        `yaml:"ledger"`
	AuditLogDir    string              `yaml:"audit_log_dir"`
	HTTP           HTTPConfig          `yaml:"http"`
	Log            LogConfig           `yaml:"log"`
	Tools          map[string][]string `yaml:"tools"`
	PurchaseOrders []PurchaseOrder     `yaml:"purchase_orders"`
	Sweep          SweepConfig         `yaml:"sweep"`
}

// StoreConfig selects the instance and checkpoint backend. An empty driver
// is picked from the "db" tool pool.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LedgerConfig selects the human review ledger backend. "store" keeps the
// ledger in the same backend as the checkpoints.
type LedgerConfig struct {
	Driver    string `yaml:"driver"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// SweepConfig enables automatic rejection of stale checkpoints.
type SweepConfig struct {
	MaxAge   time.Duration `yaml:"max_age"`
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Settings: DefaultSettings(),
		Store:    StoreConfig{DSN: "invoiceflow.db"},
		Ledger:   LedgerConfig{Driver: "store", KeyPrefix: "invoiceflow"},
		HTTP:     HTTPConfig{Addr: ":8081", ShutdownTimeout: 10 * time.Second},
		Log:      LogConfig{Format: "text", Level: "info"},
		Sweep:    SweepConfig{Interval: time.Hour},
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig. An empty path
// returns the defaults. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := decodeConfig(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigString parses YAML config text on top of DefaultConfig.
func LoadConfigString(data string) (*Config, error) {
	cfg := DefaultConfig()
	if err := decodeConfig([]byte(data), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeConfig(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return cfg.Validate()
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match_threshold must be in (0, 1], got %v", c.MatchThreshold)
	}
	if c.TolerancePct <= 0 {
		return fmt.Errorf("two_way_tolerance_pct must be positive, got %v", c.TolerancePct)
	}
	switch c.Store.Driver {
	case "", "sqlite", "postgres", "file", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Ledger.Driver {
	case "", "store", "redis":
	default:
		return fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver)
	}
	if c.Ledger.Driver == "redis" && c.Ledger.RedisAddr == "" {
		return fmt.Errorf("ledger.redis_addr is required for the redis ledger")
	}
	if c.Sweep.MaxAge < 0 {
		return fmt.Errorf("sweep.max_age must not be negative")
	}
	return nil
}
