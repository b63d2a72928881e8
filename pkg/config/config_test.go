package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "Throughput", cfg.DeviceName)
	assert.Equal(t, DefaultServiceUUID, cfg.ServiceUUID)
	assert.Equal(t, uint16(247), cfg.MaxMTU)
	assert.Equal(t, 100*time.Millisecond, cfg.IdleInterval)
	assert.False(t, cfg.PersistStreaming)
	assert.Equal(t, uint32(64), cfg.HistorySize)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", expected: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", expected: logrus.ErrorLevel},
		{name: "falls back to info on garbage", logLevel: "chatty", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_OverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blepump.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device_name: Bench
max_mtu: 185
idle_interval: 250ms
persist_streaming: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Bench", cfg.DeviceName)
	assert.Equal(t, uint16(185), cfg.MaxMTU)
	assert.Equal(t, 250*time.Millisecond, cfg.IdleInterval)
	assert.True(t, cfg.PersistStreaming)
	assert.Equal(t, DefaultServiceUUID, cfg.ServiceUUID, "untouched fields MUST keep defaults")
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("max_mtu: [1, 2"), 0o600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("max_mtu: 600\n"), 0o600))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "max_mtu 600 out of range")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty name", mutate: func(c *Config) { c.DeviceName = "" }, wantErr: "device_name"},
		{name: "mtu below minimum", mutate: func(c *Config) { c.MaxMTU = 22 }, wantErr: "max_mtu"},
		{name: "zero idle interval", mutate: func(c *Config) { c.IdleInterval = 0 }, wantErr: "idle_interval"},
		{name: "16-bit service uuid", mutate: func(c *Config) { c.ServiceUUID = "180d" }, wantErr: "128-bit"},
		{name: "garbage service uuid", mutate: func(c *Config) { c.ServiceUUID = "xyz" }, wantErr: "invalid service_uuid"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfig_PeripheralOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PersistStreaming = true
	cfg.PatternStart = 42

	logger := cfg.NewLogger()
	opts := cfg.PeripheralOptions(logger, nil)

	assert.Equal(t, cfg.MaxMTU, opts.MaxMTU)
	assert.Equal(t, cfg.IdleInterval, opts.IdleInterval)
	assert.Equal(t, uint32(42), opts.PatternStart)
	assert.False(t, opts.ResetStreamingOnDisconnect)
	assert.Same(t, logger, opts.Logger)
}

func TestConfig_ServiceBLEUUID(t *testing.T) {
	u, err := DefaultConfig().ServiceBLEUUID()
	require.NoError(t, err)
	assert.Equal(t, "1fb3e46454bd4af8a7454bde4136ecf4", u.String())
}
