// Package config handles Toolhost configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/toolhost/config.yaml, /etc/toolhost/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "toolhost", "config.yaml"))
	}

	paths = append(paths, "/etc/toolhost/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Toolhost configuration.
type Config struct {
	Servers    []ServerConfig   `yaml:"servers"`
	RateLimits RateLimitsConfig `yaml:"rate_limits"`
	History    HistoryConfig    `yaml:"history"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`

	// ConnectTimeoutSec bounds each server's spawn-and-handshake at
	// startup (default 30).
	ConnectTimeoutSec int `yaml:"connect_timeout_sec"`

	// RequestTimeoutSec is the default per-request timeout applied when
	// a caller does not bring its own deadline (default 30).
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
}

// ServerConfig defines one MCP server to connect to. Name is the unique
// key for the connection; later entries with the same name overwrite
// earlier ones.
type ServerConfig struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"` // "stdio" (default), "http", or "websocket"

	// Stdio transport settings.
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Dir     string            `yaml:"dir"`

	// HTTP and websocket transport settings.
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	// IncludeTools limits discovery to the named tools. ExcludeTools
	// skips the named tools. Include wins when both are set.
	IncludeTools []string `yaml:"include_tools"`
	ExcludeTools []string `yaml:"exclude_tools"`
}

// RateLimitsConfig defines per-category token bucket sizes. Capacity is
// the burst size; the bucket refills at capacity tokens per window.
type RateLimitsConfig struct {
	Browser RateLimitConfig `yaml:"browser"`
	MCP     RateLimitConfig `yaml:"mcp"`
}

// RateLimitConfig is a single category's bucket: Capacity tokens
// replenished evenly over WindowSec seconds.
type RateLimitConfig struct {
	Capacity  int `yaml:"capacity"`
	WindowSec int `yaml:"window_sec"`
}

// HistoryConfig controls the tool-call audit store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // defaults to {data_dir}/history.db
}

// Load reads and parses a config file, applying defaults for any
// unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.ConnectTimeoutSec <= 0 {
		c.ConnectTimeoutSec = 30
	}
	if c.RequestTimeoutSec <= 0 {
		c.RequestTimeoutSec = 30
	}
	if c.RateLimits.Browser.Capacity <= 0 {
		c.RateLimits.Browser.Capacity = 10
	}
	if c.RateLimits.Browser.WindowSec <= 0 {
		c.RateLimits.Browser.WindowSec = 60
	}
	if c.RateLimits.MCP.Capacity <= 0 {
		c.RateLimits.MCP.Capacity = 60
	}
	if c.RateLimits.MCP.WindowSec <= 0 {
		c.RateLimits.MCP.WindowSec = 60
	}
	if c.History.Enabled && c.History.Path == "" {
		c.History.Path = filepath.Join(c.DataDir, "history.db")
	}

	for i := range c.Servers {
		if c.Servers[i].Transport == "" {
			c.Servers[i].Transport = "stdio"
		}
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Servers))
	for _, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("server entry missing name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate server name %q", s.Name)
		}
		seen[s.Name] = true

		switch s.Transport {
		case "stdio":
			if s.Command == "" {
				return fmt.Errorf("server %q: stdio transport requires command", s.Name)
			}
		case "http", "websocket":
			if s.URL == "" {
				return fmt.Errorf("server %q: %s transport requires url", s.Name, s.Transport)
			}
		default:
			return fmt.Errorf("server %q: unknown transport %q", s.Name, s.Transport)
		}
	}
	return nil
}

// ConnectTimeout returns the startup connect timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

// RequestTimeout returns the default request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}
