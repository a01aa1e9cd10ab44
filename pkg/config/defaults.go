package config

import (
	"strings"
	"time"

	"github.com/marmos91/gofor/pkg/adapter/gopher"
)

// Default values for the Gopher adapter.
const (
	DefaultFQDN            = "localhost"
	DefaultGopherPort      = 70
	DefaultRoot            = "/var/gopher"
	DefaultMetricsPort     = 9090
	DefaultMenuCacheSize   = 1024
	DefaultShutdownTimeout = 30 * time.Second
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Read/write timeouts, connection limit, and rate limit stay disabled at zero
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// A config with no gopher section at all (port still 0) enables the
	// adapter; an explicit enabled: false with a port is preserved.
	if !cfg.Gopher.Enabled && cfg.Gopher.Port == 0 {
		cfg.Gopher.Enabled = true
	}

	applyGopherDefaults(&cfg.Gopher)
}

// applyGopherDefaults sets Gopher adapter defaults.
func applyGopherDefaults(cfg *gopher.GopherConfig) {
	if cfg.FQDN == "" {
		cfg.FQDN = DefaultFQDN
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultGopherPort
	}
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if cfg.MaxSelectorLength == 0 {
		cfg.MaxSelectorLength = 4096
	}
	if cfg.Timeouts.Shutdown == 0 {
		cfg.Timeouts.Shutdown = DefaultShutdownTimeout
	}
	if cfg.MenuCache.MaxEntries == 0 {
		cfg.MenuCache.MaxEntries = DefaultMenuCacheSize
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = cfg.RateLimit.RequestsPerSecond
	}

	// MaxConnections, read/write timeouts, and MetricsLogInterval default to 0 (disabled)
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{
			Gopher: gopher.GopherConfig{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
