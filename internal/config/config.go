// Package config loads the YAML configuration shared by the CLI and the daemon.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
	"github.com/eliteGoblin/focusd/focuslock/internal/infra"
	"github.com/eliteGoblin/focusd/focuslock/internal/token"
)

// Config is the full configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Logging  LoggingConfig  `yaml:"logging"`
	Filter   FilterConfig   `yaml:"filter"`
	Daemon   DaemonConfig   `yaml:"daemon"`
	DeepLink DeepLinkConfig `yaml:"deep_link"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // daemon log; defaults to <data_dir>/focuslock.log
}

type FilterConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Interface string   `yaml:"interface"`
	Address   string   `yaml:"address"`
	Routes    []string `yaml:"routes"`
	DNSServer string   `yaml:"dns_server"`
	MTU       int      `yaml:"mtu"`
}

type DaemonConfig struct {
	TickInterval        time.Duration `yaml:"tick_interval"`        // timer, break and schedule checks
	EnforcementInterval time.Duration `yaml:"enforcement_interval"` // blocked app sweep
}

type DeepLinkConfig struct {
	Prefixes []string `yaml:"prefixes"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	mode := infra.DetectExecMode()
	tun := infra.DefaultTUNConfig()
	return &Config{
		DataDir: mode.DataDir,
		Logging: LoggingConfig{Level: "info"},
		Filter: FilterConfig{
			Enabled:   true,
			Interface: tun.Name,
			Address:   tun.Address,
			Routes:    tun.Routes,
			DNSServer: tun.DNSServer,
			MTU:       tun.MTU,
		},
		Daemon: DaemonConfig{
			TickInterval:        5 * time.Second,
			EnforcementInterval: 10 * time.Second,
		},
		DeepLink: DeepLinkConfig{Prefixes: append([]string(nil), token.DefaultPrefixes...)},
	}
}

// DefaultPath returns the config file location for the current exec mode.
func DefaultPath() string {
	return infra.DetectExecMode().ConfigPath
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Attr(apperrors.Wrap(err, apperrors.KindValidation, "parse config"), "path", path)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, apperrors.Attr(apperrors.Wrap(err, apperrors.KindUnavailable, "read config"), "path", path)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if dir := os.Getenv("FOCUSLOCK_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if level := os.Getenv("FOCUSLOCK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if enabled := os.Getenv("FOCUSLOCK_FILTER_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return apperrors.Attr(apperrors.Wrap(err, apperrors.KindValidation, "invalid FOCUSLOCK_FILTER_ENABLED"), "value", enabled)
		}
		c.Filter.Enabled = v
	}
	if listen := os.Getenv("FOCUSLOCK_METRICS_LISTEN"); listen != "" {
		c.Metrics.Listen = listen
	}
	return nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.DataDir, "focuslock.log")
	}
	if c.Filter.Interface == "" {
		c.Filter.Interface = def.Filter.Interface
	}
	if c.Filter.Address == "" {
		c.Filter.Address = def.Filter.Address
	}
	if c.Filter.Routes == nil {
		c.Filter.Routes = def.Filter.Routes
	}
	if c.Filter.MTU == 0 {
		c.Filter.MTU = def.Filter.MTU
	}
	if c.Daemon.TickInterval <= 0 {
		c.Daemon.TickInterval = def.Daemon.TickInterval
	}
	if c.Daemon.EnforcementInterval <= 0 {
		c.Daemon.EnforcementInterval = def.Daemon.EnforcementInterval
	}
	if len(c.DeepLink.Prefixes) == 0 {
		c.DeepLink.Prefixes = def.DeepLink.Prefixes
	}
}

// Validate checks values that would otherwise fail late in the daemon.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return apperrors.Attr(apperrors.Wrap(err, apperrors.KindValidation, "invalid log level"), "level", c.Logging.Level)
	}
	if c.Filter.Enabled {
		if err := c.TUN().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TUN returns the interface configuration for the filter.
func (c *Config) TUN() infra.TUNConfig {
	return infra.TUNConfig{
		Name:      c.Filter.Interface,
		Address:   c.Filter.Address,
		Routes:    c.Filter.Routes,
		DNSServer: c.Filter.DNSServer,
		MTU:       c.Filter.MTU,
	}
}

// DaemonLogger builds the JSON file logger used by the long-running daemon.
func (c *Config) DaemonLogger() *zap.Logger {
	level, _ := zapcore.ParseLevel(c.Logging.Level)

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{c.Logging.File}
	zc.ErrorOutputPaths = []string{c.Logging.File}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0700); err == nil {
		if logger, err := zc.Build(); err == nil {
			return logger
		}
	}
	// Fallback to stderr if file logging fails
	logger, _ := zap.NewProduction()
	return logger
}
