// Package config loads runtime configuration from the environment. All
// variables carry the P2P prefix, so the listen address for example is
// P2P_LISTEN_ADDR.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// ErrInvalidConfig indicates configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every tunable of the node. Defaults match the values the
// protocol was designed around.
type Config struct {
	// ListenAddr is the TCP address the transport binds.
	ListenAddr string `split_words:"true" default:"0.0.0.0:9990"`

	// OutputDir receives completed files on the listening side.
	OutputDir string `split_words:"true" default:"./received"`

	// MaxActiveTransfers caps concurrent non-terminal transfers.
	MaxActiveTransfers int `split_words:"true" default:"16"`

	// AutoConvert allows inbound transfers to request format conversion.
	// When disabled, requests carrying a target format are rejected.
	AutoConvert bool `split_words:"true" default:"true"`

	// Retry schedule for outbound connections.
	RetryMaxAttempts    int           `split_words:"true" default:"5"`
	RetryInitialDelay   time.Duration `split_words:"true" default:"500ms"`
	RetryMaxDelay       time.Duration `split_words:"true" default:"30s"`
	RetryMultiplier     float64       `split_words:"true" default:"2.0"`
	RetryAttemptTimeout time.Duration `split_words:"true" default:"10s"`

	// Bookkeeping intervals for finished and stalled transfers.
	SweepInterval  time.Duration `split_words:"true" default:"60s"`
	ExpiryInterval time.Duration `split_words:"true" default:"30s"`
	Retention      time.Duration `split_words:"true" default:"300s"`
	StallTimeout   time.Duration `split_words:"true" default:"300s"`

	// PDF rendering settings for text to PDF conversion.
	PDFFontFamily string  `split_words:"true" default:"Arial"`
	PDFFontSize   float64 `split_words:"true" default:"12"`

	// LogLevel selects the logrus level by name.
	LogLevel string `split_words:"true" default:"info"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("p2p", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Load",
		"listen_addr": cfg.ListenAddr,
		"output_dir":  cfg.OutputDir,
	}).Debug("Configuration loaded")
	return &cfg, nil
}

// Validate rejects settings the node cannot run with.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen address must not be empty", ErrInvalidConfig)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory must not be empty", ErrInvalidConfig)
	}
	if c.MaxActiveTransfers <= 0 {
		return fmt.Errorf("%w: max active transfers must be positive", ErrInvalidConfig)
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("%w: retry attempts must be positive", ErrInvalidConfig)
	}
	if c.RetryMultiplier <= 1.0 {
		return fmt.Errorf("%w: retry multiplier must be greater than 1.0", ErrInvalidConfig)
	}
	if c.RetryInitialDelay <= 0 || c.RetryMaxDelay < c.RetryInitialDelay {
		return fmt.Errorf("%w: retry delays must be positive and ordered", ErrInvalidConfig)
	}
	if c.SweepInterval <= 0 || c.ExpiryInterval <= 0 || c.Retention <= 0 || c.StallTimeout <= 0 {
		return fmt.Errorf("%w: bookkeeping intervals must be positive", ErrInvalidConfig)
	}
	if c.PDFFontSize <= 0 {
		return fmt.Errorf("%w: pdf font size must be positive", ErrInvalidConfig)
	}
	return nil
}

// EnsureOutputDir creates the output directory if it does not exist.
func (c *Config) EnsureOutputDir() error {
	if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", c.OutputDir, err)
	}
	return nil
}

// ParseLogLevel resolves the configured log level, falling back to Info for
// unrecognized names.
func (c *Config) ParseLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
