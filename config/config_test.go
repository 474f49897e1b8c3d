package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9990", cfg.ListenAddr)
	assert.Equal(t, "./received", cfg.OutputDir)
	assert.Equal(t, 16, cfg.MaxActiveTransfers)
	assert.True(t, cfg.AutoConvert)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryInitialDelay)
	assert.Equal(t, 30*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 2.0, cfg.RetryMultiplier)
	assert.Equal(t, 10*time.Second, cfg.RetryAttemptTimeout)
	assert.Equal(t, 60*time.Second, cfg.SweepInterval)
	assert.Equal(t, 30*time.Second, cfg.ExpiryInterval)
	assert.Equal(t, 300*time.Second, cfg.Retention)
	assert.Equal(t, 300*time.Second, cfg.StallTimeout)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("P2P_LISTEN_ADDR", "127.0.0.1:7000")
	t.Setenv("P2P_MAX_ACTIVE_TRANSFERS", "4")
	t.Setenv("P2P_RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("P2P_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.ListenAddr)
	assert.Equal(t, 4, cfg.MaxActiveTransfers)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, logrus.DebugLevel, cfg.ParseLogLevel())
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }},
		{"empty output dir", func(c *Config) { c.OutputDir = "" }},
		{"zero max transfers", func(c *Config) { c.MaxActiveTransfers = 0 }},
		{"zero retry attempts", func(c *Config) { c.RetryMaxAttempts = 0 }},
		{"multiplier below one", func(c *Config) { c.RetryMultiplier = 0.5 }},
		{"multiplier of exactly one", func(c *Config) { c.RetryMultiplier = 1.0 }},
		{"max delay below initial", func(c *Config) { c.RetryMaxDelay = time.Millisecond }},
		{"zero retention", func(c *Config) { c.Retention = 0 }},
		{"zero font size", func(c *Config) { c.PDFFontSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestEnsureOutputDir(t *testing.T) {
	cfg := &Config{OutputDir: t.TempDir() + "/nested/out"}
	require.NoError(t, cfg.EnsureOutputDir())
	require.NoError(t, cfg.EnsureOutputDir())
}

func TestParseLogLevelFallback(t *testing.T) {
	cfg := &Config{LogLevel: "nonsense"}
	assert.Equal(t, logrus.InfoLevel, cfg.ParseLogLevel())
}
