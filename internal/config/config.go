// Package config loads node configuration. Values come from defaults, then an
// optional YAML file, then MULTICALL_* environment variables. Command-line
// flags are applied last by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"multicall/internal/chain"
	"multicall/internal/logger"
	"multicall/internal/state"
)

// Config holds the node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string `yaml:"data" env:"MULTICALL_DATA"`

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string `yaml:"http" env:"MULTICALL_HTTP"`

	// QUICAddress is the QUIC listen address for peer queries.
	QUICAddress string `yaml:"quic" env:"MULTICALL_QUIC"`

	// KeyPath is the path to the Ed25519 private key file.
	// Empty means an ephemeral key.
	KeyPath string `yaml:"key" env:"MULTICALL_KEY"`

	// BlockInterval is the time between blocks.
	BlockInterval time.Duration `yaml:"block_interval" env:"MULTICALL_BLOCK_INTERVAL"`

	// GasLimit bounds each pod query.
	GasLimit uint64 `yaml:"gas_limit" env:"MULTICALL_GAS_LIMIT"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"MULTICALL_LOG_LEVEL"`

	// Routes maps pod addresses served by other nodes to their QUIC address.
	// In the environment: MULTICALL_ROUTES=addr1=host:port,addr2=host:port
	Routes map[string]string `yaml:"routes" env:"MULTICALL_ROUTES" envSeparator:"," envKeyValSeparator:"="`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		DataPath:      "./data",
		HTTPAddress:   ":8080",
		QUICAddress:   ":9000",
		BlockInterval: chain.DefaultBlockInterval,
		GasLimit:      state.DefaultGasLimit,
		LogLevel:      "info",
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseEnv overrides fields of target from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env:\n%w", err)
	}
	return nil
}

// readFile merges the YAML file at path into c. Unknown keys are errors.
func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file:\n%w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s:\n%w", path, err)
	}

	return nil
}

// Validate checks the configuration for values the node cannot start with.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("data path is required")
	}

	if c.HTTPAddress == "" {
		return fmt.Errorf("http address is required")
	}

	if c.QUICAddress == "" {
		return fmt.Errorf("quic address is required")
	}

	if c.BlockInterval <= 0 {
		return fmt.Errorf("block interval must be positive: %s", c.BlockInterval)
	}

	if c.GasLimit == 0 {
		return fmt.Errorf("gas limit must be positive")
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	for addr, peer := range c.Routes {
		if addr == "" || peer == "" {
			return fmt.Errorf("invalid route %q -> %q", addr, peer)
		}
	}

	return nil
}
