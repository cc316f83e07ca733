// Package config provides TOML configuration file loading and parsing for
// the tabterm host. The configuration file lives at ~/.tabterm/config.toml
// by default, but can be overridden with the --config flag. CLI flags
// always take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the host configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML
// files via struct tags.
type Config struct {
	// Addr is the host:port for the WebSocket server.
	// Default: 127.0.0.1:7180
	Addr string `toml:"addr"`

	// RootDir is the initial working directory for new tabs.
	// If empty, defaults to the user's home directory.
	RootDir string `toml:"root_dir"`

	// SandboxRoot is an optional boundary for destructive filesystem
	// operations. When set, rm/mv refuse to touch anything outside it
	// and cd refuses to leave it. Empty disables the boundary (only
	// the filesystem root itself stays protected).
	SandboxRoot string `toml:"sandbox_root"`

	// HistoryCap is the maximum number of commands retained per tab.
	// Oldest entries are evicted first. Default: 500
	HistoryCap int `toml:"history_cap"`

	// HistoryDedupe suppresses a history append when the command is
	// identical to the immediately preceding entry. Default: true
	HistoryDedupe bool `toml:"history_dedupe"`

	// MetricsIntervalMs is the system metrics sampling period in
	// milliseconds. Default: 2000
	MetricsIntervalMs int `toml:"metrics_interval_ms"`

	// SessionTTLSec is how long a tab's state survives after its
	// connection closes, allowing a reconnect to resume it.
	// Default: 300
	SessionTTLSec int `toml:"session_ttl_sec"`

	// ExecTimeoutSec is the hard timeout for host process execution.
	// Default: 10
	ExecTimeoutSec int `toml:"exec_timeout_sec"`

	// DBPath is the path to the SQLite database for command transcripts.
	// Default: ~/.tabterm/tabterm.db
	DBPath string `toml:"db_path"`

	// MdnsEnabled enables mDNS/Bonjour service advertisement.
	// When true, the host advertises itself on the local network so
	// browsers on other devices can discover it without manual IP entry.
	// Default: false (must be explicitly enabled)
	MdnsEnabled bool `toml:"mdns_enabled"`

	// QR displays the connect URL as a QR code at startup.
	// Default: false
	QR bool `toml:"qr"`
}

// DefaultConfigPath returns the default config file location:
// ~/.tabterm/config.toml. Returns an error only if the user's home
// directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tabterm", "config.toml"), nil
}

// DefaultDBPath returns the default transcript database location:
// ~/.tabterm/tabterm.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tabterm", "tabterm.db"), nil
}

// WriteDefault creates a config file with sensible defaults at the given
// path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string, rootDir string) error {
	// Check if file already exists - never overwrite
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, nothing to do
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Build minimal TOML config.
	// Using raw string to control formatting exactly
	content := fmt.Sprintf(`# tabterm configuration
# Created by 'tabterm start'

# Listen address for the web terminal
addr = %q

# Initial working directory for new tabs
root_dir = %q
`, DefaultAddr, rootDir)

	// Write with restrictive permissions (owner read/write only)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path and returns a Config
// with defaults applied to any unset field.
//
// Behavior:
//   - If path is empty, attempts to load from the default location
//     (~/.tabterm/config.toml). Returns a default Config without error if
//     the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{
		// HistoryDedupe defaults to true; TOML absence must not turn it off,
		// so it is seeded before decoding.
		HistoryDedupe: true,
	}

	if path == "" {
		// No explicit path: try default location, but don't error if missing.
		// This allows the host to start without any config file.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			// Can't determine home dir, return defaults
			cfg.applyDefaults()
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			// Default config doesn't exist, that's fine
			cfg.applyDefaults()
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist.
		// This matches user expectation: if they specify a config file,
		// it should exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	// Parse the TOML file. Any parse error is fatal since the user expects
	// the config to be applied.
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero-valued fields with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.RootDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.RootDir = home
		} else {
			c.RootDir = "/"
		}
	}
	if c.HistoryCap <= 0 {
		c.HistoryCap = DefaultHistoryCap
	}
	if c.MetricsIntervalMs <= 0 {
		c.MetricsIntervalMs = DefaultMetricsIntervalMs
	}
	if c.SessionTTLSec <= 0 {
		c.SessionTTLSec = DefaultSessionTTLSec
	}
	if c.ExecTimeoutSec <= 0 {
		c.ExecTimeoutSec = DefaultExecTimeoutSec
	}
	if c.DBPath == "" {
		if p, err := DefaultDBPath(); err == nil {
			c.DBPath = p
		}
	}
}
