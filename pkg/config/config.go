package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blepump/internal/throughput"
	"gopkg.in/yaml.v3"
)

// DefaultServiceUUID is the throughput service advertised by the peripheral
const DefaultServiceUUID = "1fb3e464-54bd-4af8-a745-4bde4136ecf4"

// Config holds application configuration
type Config struct {
	LogLevel         string        `yaml:"log_level" default:"info"`
	DeviceName       string        `yaml:"device_name" default:"Throughput"`
	ServiceUUID      string        `yaml:"service_uuid" default:"1fb3e464-54bd-4af8-a745-4bde4136ecf4"`
	MaxMTU           uint16        `yaml:"max_mtu" default:"247"`
	IdleInterval     time.Duration `yaml:"idle_interval" default:"100ms"`
	PersistStreaming bool          `yaml:"persist_streaming" default:"false"` // keep streaming enabled across reconnects
	PatternStart     uint32        `yaml:"pattern_start" default:"0"`
	HistorySize      uint32        `yaml:"history_size" default:"64"` // diagnostic events kept for the shutdown summary
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("device_name must not be empty")
	}
	if c.MaxMTU < throughput.DefaultMTU || c.MaxMTU > throughput.MaxATTMTU {
		return fmt.Errorf("max_mtu %d out of range [%d, %d]", c.MaxMTU, throughput.DefaultMTU, throughput.MaxATTMTU)
	}
	if c.IdleInterval <= 0 {
		return fmt.Errorf("idle_interval must be positive")
	}
	if _, err := c.ServiceBLEUUID(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// ServiceBLEUUID parses ServiceUUID
func (c *Config) ServiceBLEUUID() (ble.UUID, error) {
	u, err := ble.Parse(c.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service_uuid %q: %w", c.ServiceUUID, err)
	}
	if u.Len() != 16 {
		return nil, fmt.Errorf("service_uuid %q must be a 128-bit UUID", c.ServiceUUID)
	}
	return u, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// PeripheralOptions converts the configuration into throughput options
func (c *Config) PeripheralOptions(logger *logrus.Logger, diag throughput.Diagnostics) *throughput.Options {
	return &throughput.Options{
		MaxMTU:                     c.MaxMTU,
		IdleInterval:               c.IdleInterval,
		PatternStart:               c.PatternStart,
		ResetStreamingOnDisconnect: !c.PersistStreaming,
		Logger:                     logger,
		Diagnostics:                diag,
	}
}
