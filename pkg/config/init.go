package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# gofor Configuration File
#
# Precedence: command-line flags > GOFOR_* environment variables > this file > defaults.
# Environment variables use underscores for nesting, e.g. GOFOR_ADAPTERS_GOPHER_PORT=7070.

`

// fieldComments are attached above the matching keys of a generated file.
var fieldComments = map[string]string{
	"logging":        "# Logging configuration",
	"logging.level":  "# Minimum level: DEBUG, INFO, WARN, ERROR",
	"logging.format": "# Output format: text or json",
	"logging.output": "# Destination: stdout, stderr, or a file path",

	"server":                  "# Server-wide settings",
	"server.shutdown_timeout": "# Maximum time to wait for adapters during shutdown",
	"server.metrics":          "# Prometheus metrics endpoint (/metrics)",

	"adapters":                               "# Protocol adapters",
	"adapters.gopher.fqdn":                   "# Host name clients should use; filled into menu lines without a host",
	"adapters.gopher.port":                   "# TCP port to listen on",
	"adapters.gopher.root":                   "# Document root; directories need a world-readable gophermap",
	"adapters.gopher.chroot":                 "# chroot into the document root at startup (requires root)",
	"adapters.gopher.ipv4":                   "# Bind 0.0.0.0 instead of ::",
	"adapters.gopher.verbose":                "# Log every request and its outcome",
	"adapters.gopher.url_redirect":           "# Answer URL: selectors with an HTML redirect page",
	"adapters.gopher.max_selector_length":    "# Longest accepted request line in bytes",
	"adapters.gopher.max_connections":        "# Concurrent connection limit (0 = unlimited)",
	"adapters.gopher.timeouts":               "# Timeouts (0 = disabled, except shutdown)",
	"adapters.gopher.metrics_log_interval":   "# Interval for logging connection counts (0 = disabled)",
	"adapters.gopher.menu_cache":             "# Cache rendered gophermaps in memory",
	"adapters.gopher.menu_cache.max_entries": "# Maximum number of cached menus",

	"adapters.gopher.rate_limit":                     "# New connections per second (0 = unlimited)",
	"adapters.gopher.rate_limit.requests_per_second": "# Sustained rate",
	"adapters.gopher.rate_limit.burst":               "# Connections allowed in a burst above the sustained rate",
}

// InitConfig writes a sample configuration file to the default location and
// returns its path.
//
// Returns an error if the file already exists and force is false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with explanatory comments.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	annotate(&doc, "")

	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return buf.String(), nil
}

// annotate walks mapping nodes and attaches fieldComments by dotted key path.
func annotate(node *yaml.Node, prefix string) {
	if node.Kind == yaml.DocumentNode {
		for _, child := range node.Content {
			annotate(child, prefix)
		}
		return
	}
	if node.Kind != yaml.MappingNode {
		return
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		path := key.Value
		if prefix != "" {
			path = prefix + "." + key.Value
		}
		if comment, ok := fieldComments[path]; ok {
			key.HeadComment = comment
		}
		annotate(value, path)
	}
}
