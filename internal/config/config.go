// Package config loads webpilot configuration from KDL files and the
// environment.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// GlobalConfigFile is the config file name under the webpilot config dir.
const GlobalConfigFile = "config.kdl"

// Environment variables recognized by webpilot.
const (
	// EnvSocket overrides the daemon socket path.
	EnvSocket = "WEBPILOT_SOCKET"
	// EnvDebug enables verbose protocol tracing on the client.
	EnvDebug = "WEBPILOT_DEBUG"
	// EnvDaemon forces daemon mode when the binary is invoked as an
	// entry point rather than spawned detached.
	EnvDaemon = "WEBPILOT_DAEMON"
)

// Config holds the complete webpilot configuration.
type Config struct {
	// Browser holds defaults for implicit and explicit launches.
	Browser BrowserConfig `json:"browser"`

	// NavTimeout bounds page navigations.
	NavTimeout time.Duration `json:"nav_timeout"`

	// ActionTimeout bounds individual page actions (click, wait, eval...).
	ActionTimeout time.Duration `json:"action_timeout"`

	// SocketPath overrides the daemon socket path. Empty means the
	// well-known default under the temp dir.
	SocketPath string `json:"socket_path,omitempty"`
}

// BrowserConfig holds browser launch defaults.
type BrowserConfig struct {
	// Engine selects the browser: "chromium" (default), "chrome",
	// "chrome-beta", "edge", or an absolute executable path.
	Engine string `json:"engine"`
	// Headless runs the browser without a visible window.
	Headless bool `json:"headless"`
	// Width and Height set the viewport.
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Engine:   "chromium",
			Headless: true,
			Width:    1280,
			Height:   800,
		},
		NavTimeout:    30 * time.Second,
		ActionTimeout: 15 * time.Second,
	}
}

// Load reads the global config, falling back to defaults when no file
// exists, then applies environment overrides.
func Load() (*Config, error) {
	cfg, err := LoadGlobal()
	if err != nil {
		return nil, err
	}
	if sock := os.Getenv(EnvSocket); sock != "" {
		cfg.SocketPath = sock
	}
	return cfg, nil
}

// LoadGlobal loads the global configuration from the default location.
func LoadGlobal() (*Config, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), nil
		}
		configDir = filepath.Join(home, ".config")
	}

	configPath := filepath.Join(configDir, "webpilot", GlobalConfigFile)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseKDL(string(data))
}

// Debug reports whether protocol tracing is enabled via the environment.
func Debug() bool {
	v := os.Getenv(EnvDebug)
	return v != "" && v != "0" && v != "false"
}
