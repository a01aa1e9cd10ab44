package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/marmos91/gofor/pkg/adapter/gopher"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config represents the complete gofor configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (GOFOR_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig controls the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// Gopher uses the gopher.GopherConfig type directly to avoid duplication.
	Gopher gopher.GopherConfig `mapstructure:"gopher" yaml:"gopher"`
}

// FlagBindings maps command-line flag names to configuration keys.
//
// Only flags present in the FlagSet handed to LoadWithFlags are bound, and a
// flag overrides the file and environment only when set explicitly.
var FlagBindings = map[string]string{
	"fqdn":      "adapters.gopher.fqdn",
	"port":      "adapters.gopher.port",
	"root":      "adapters.gopher.root",
	"ipv4":      "adapters.gopher.ipv4",
	"verbose":   "adapters.gopher.verbose",
	"chroot":    "adapters.gopher.chroot",
	"log-level": "logging.level",
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	return LoadWithFlags(configPath, nil)
}

// LoadWithFlags is Load with command-line flag overrides. flags may be nil.
func LoadWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)
	setDefaults(v)

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// decodeHook converts the string forms found in files and environment
// variables ("30s", "a,b") into their Go types.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: GOFOR_ADAPTERS_GOPHER_PORT=7070
	v.SetEnvPrefix("GOFOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/gofor/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// setDefaults registers every key with viper so environment variables are
// honoured even when the config file does not mention the key.
func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	g := d.Adapters.Gopher

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.metrics.enabled", d.Server.Metrics.Enabled)
	v.SetDefault("server.metrics.port", d.Server.Metrics.Port)

	v.SetDefault("adapters.gopher.enabled", g.Enabled)
	v.SetDefault("adapters.gopher.fqdn", g.FQDN)
	v.SetDefault("adapters.gopher.port", g.Port)
	v.SetDefault("adapters.gopher.root", g.Root)
	v.SetDefault("adapters.gopher.chroot", g.Chroot)
	v.SetDefault("adapters.gopher.ipv4", g.IPv4)
	v.SetDefault("adapters.gopher.verbose", g.Verbose)
	v.SetDefault("adapters.gopher.url_redirect", g.URLRedirect)
	v.SetDefault("adapters.gopher.max_selector_length", g.MaxSelectorLength)
	v.SetDefault("adapters.gopher.max_connections", g.MaxConnections)
	v.SetDefault("adapters.gopher.timeouts.read", g.Timeouts.Read)
	v.SetDefault("adapters.gopher.timeouts.write", g.Timeouts.Write)
	v.SetDefault("adapters.gopher.timeouts.shutdown", g.Timeouts.Shutdown)
	v.SetDefault("adapters.gopher.rate_limit.requests_per_second", g.RateLimit.RequestsPerSecond)
	v.SetDefault("adapters.gopher.rate_limit.burst", g.RateLimit.Burst)
	v.SetDefault("adapters.gopher.metrics_log_interval", g.MetricsLogInterval)
	v.SetDefault("adapters.gopher.menu_cache.enabled", g.MenuCache.Enabled)
	v.SetDefault("adapters.gopher.menu_cache.max_entries", g.MenuCache.MaxEntries)
}

// bindFlags attaches the flags listed in FlagBindings.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range FlagBindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		// An explicit path that does not exist is not an error either
		if configPath != "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gofor")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "gofor")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
