package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

adapters:
  gopher:
    fqdn: "gopher.example.org"
    root: "/srv/gopher"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Adapters.Gopher.Port != 70 {
		t.Errorf("Expected default Gopher port 70, got %d", cfg.Adapters.Gopher.Port)
	}
	if cfg.Adapters.Gopher.MaxSelectorLength != 4096 {
		t.Errorf("Expected default max_selector_length 4096, got %d", cfg.Adapters.Gopher.MaxSelectorLength)
	}

	// Verify explicit values were kept
	if cfg.Adapters.Gopher.FQDN != "gopher.example.org" {
		t.Errorf("Expected fqdn 'gopher.example.org', got %q", cfg.Adapters.Gopher.FQDN)
	}
	if cfg.Adapters.Gopher.Root != "/srv/gopher" {
		t.Errorf("Expected root '/srv/gopher', got %q", cfg.Adapters.Gopher.Root)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// A missing explicit path keeps us away from the user's ~/.config/gofor/
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Adapters.Gopher.FQDN != "localhost" {
		t.Errorf("Expected default fqdn 'localhost', got %q", cfg.Adapters.Gopher.FQDN)
	}
	if cfg.Adapters.Gopher.Root != "/var/gopher" {
		t.Errorf("Expected default root '/var/gopher', got %q", cfg.Adapters.Gopher.Root)
	}
	if !cfg.Adapters.Gopher.Enabled {
		t.Error("Expected Gopher adapter enabled by default")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
adapters:
  gopher:
    port: 70000
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected validation error for out-of-range port, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[adapters.gopher]
enabled = true
port = 7070
url_redirect = true

[adapters.gopher.timeouts]
read = "5s"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Adapters.Gopher.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Adapters.Gopher.Port)
	}
	if !cfg.Adapters.Gopher.URLRedirect {
		t.Error("Expected url_redirect to be enabled")
	}
	if cfg.Adapters.Gopher.Timeouts.Read != 5*time.Second {
		t.Errorf("Expected read timeout 5s, got %v", cfg.Adapters.Gopher.Timeouts.Read)
	}
}

func TestLoad_Durations(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  shutdown_timeout: "45s"

adapters:
  gopher:
    timeouts:
      write: "1m"
      shutdown: "10s"
    metrics_log_interval: "2m30s"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.ShutdownTimeout != 45*time.Second {
		t.Errorf("Expected shutdown_timeout 45s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Adapters.Gopher.Timeouts.Write != time.Minute {
		t.Errorf("Expected write timeout 1m, got %v", cfg.Adapters.Gopher.Timeouts.Write)
	}
	if cfg.Adapters.Gopher.Timeouts.Shutdown != 10*time.Second {
		t.Errorf("Expected shutdown timeout 10s, got %v", cfg.Adapters.Gopher.Timeouts.Shutdown)
	}
	if cfg.Adapters.Gopher.MetricsLogInterval != 150*time.Second {
		t.Errorf("Expected metrics_log_interval 2m30s, got %v", cfg.Adapters.Gopher.MetricsLogInterval)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Server.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Server.Metrics.Port)
	}
	if !cfg.Adapters.Gopher.Enabled {
		t.Error("Expected Gopher adapter enabled by default")
	}
	if cfg.Adapters.Gopher.Port != 70 {
		t.Errorf("Expected default Gopher port 70, got %d", cfg.Adapters.Gopher.Port)
	}
	if cfg.Adapters.Gopher.Chroot {
		t.Error("Expected chroot disabled by default")
	}
	if cfg.Adapters.Gopher.MenuCache.Enabled {
		t.Error("Expected menu cache disabled by default")
	}
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if ConfigExists() {
		t.Fatal("Expected no config in an empty config directory")
	}

	if err := InitConfigToPath(GetDefaultConfigPath(), false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	if !ConfigExists() {
		t.Error("Expected config to exist after InitConfigToPath")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestConfigDir(t *testing.T) {
	dir := getConfigDir()

	if filepath.Base(dir) != "gofor" {
		t.Errorf("Expected directory name 'gofor', got %q", filepath.Base(dir))
	}
}

func TestConfigDir_XDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	if dir := getConfigDir(); dir != filepath.Join(xdg, "gofor") {
		t.Errorf("Expected %q, got %q", filepath.Join(xdg, "gofor"), dir)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("GOFOR_LOGGING_LEVEL", "ERROR")
	t.Setenv("GOFOR_ADAPTERS_GOPHER_PORT", "7070")
	// Not mentioned in the file at all
	t.Setenv("GOFOR_ADAPTERS_GOPHER_FQDN", "env.example.org")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

adapters:
  gopher:
    enabled: true
    port: 70
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify environment variables override config file
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Adapters.Gopher.Port != 7070 {
		t.Errorf("Expected port 7070 from env var, got %d", cfg.Adapters.Gopher.Port)
	}
	if cfg.Adapters.Gopher.FQDN != "env.example.org" {
		t.Errorf("Expected fqdn from env var, got %q", cfg.Adapters.Gopher.FQDN)
	}
}

func TestLoadWithFlags(t *testing.T) {
	t.Setenv("GOFOR_ADAPTERS_GOPHER_PORT", "7070")

	configPath := writeConfig(t, "config.yaml", `
adapters:
  gopher:
    fqdn: "file.example.org"
    root: "/srv/gopher"
`)

	flags := pflag.NewFlagSet("gofor", pflag.ContinueOnError)
	flags.StringP("fqdn", "f", DefaultFQDN, "")
	flags.IntP("port", "p", DefaultGopherPort, "")
	flags.StringP("root", "r", DefaultRoot, "")
	flags.BoolP("ipv4", "4", false, "")
	if err := flags.Parse([]string{"-p", "7071", "-4"}); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := LoadWithFlags(configPath, flags)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Flags beat env, unset flags do not beat the file
	if cfg.Adapters.Gopher.Port != 7071 {
		t.Errorf("Expected port 7071 from flag, got %d", cfg.Adapters.Gopher.Port)
	}
	if !cfg.Adapters.Gopher.IPv4 {
		t.Error("Expected ipv4 from flag")
	}
	if cfg.Adapters.Gopher.FQDN != "file.example.org" {
		t.Errorf("Expected fqdn from file, got %q", cfg.Adapters.Gopher.FQDN)
	}
	if cfg.Adapters.Gopher.Root != "/srv/gopher" {
		t.Errorf("Expected root from file, got %q", cfg.Adapters.Gopher.Root)
	}
}
