package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/autolinks/pkg/types"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Output formats understood by the renderers.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatTerminal = "terminal"
)

// Config holds all configuration for autolinks
type Config struct {
	// Ordered link rules; earlier rules win overlapping matches.
	Rules []types.Rule `yaml:"rules"`

	// Upper bound for a single match attempt of one rule.
	MatchTimeout time.Duration `yaml:"match_timeout" env:"AUTOLINKS_MATCH_TIMEOUT"`

	// Logging
	Debug     bool   `yaml:"debug" env:"AUTOLINKS_DEBUG"`
	LogFormat string `yaml:"log_format" env:"AUTOLINKS_LOG_FORMAT"`

	Render RenderConfig `yaml:"render"`
	Server ServerConfig `yaml:"server"`
	Watch  WatchConfig  `yaml:"watch"`

	// Path is the file the configuration was read from, if any.
	Path string `yaml:"-"`
}

// RenderConfig controls how surviving matches are written out.
type RenderConfig struct {
	Format    string `yaml:"format" env:"AUTOLINKS_FORMAT"`
	Sanitize  bool   `yaml:"sanitize" env:"AUTOLINKS_SANITIZE"`
	LinkClass string `yaml:"link_class"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr      string          `yaml:"addr" env:"AUTOLINKS_ADDR"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
}

// WatchConfig holds file watcher settings.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Rules:        []types.Rule{},
		MatchTimeout: time.Second,
		LogFormat:    "text",
		Render: RenderConfig{
			Format:    FormatMarkdown,
			LinkClass: "auto-link external-link",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8377",
			RateLimit: RateLimitConfig{
				Window:      time.Minute,
				MaxRequests: 100,
			},
		},
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
		},
	}
}

// Load loads configuration from a .env file, the config file and the
// environment, in that order. An empty path falls back to AUTOLINKS_CONFIG
// and the XDG location. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		path = getConfigPath()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		} else {
			cfg.Path = path
		}
	}

	// Override with environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile writes cfg as YAML, creating parent directories.
func SaveToFile(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultPath returns the path Load uses when none is given.
func DefaultPath() string {
	return getConfigPath()
}

// getConfigPath returns the config file path
func getConfigPath() string {
	// Check for explicit config path
	if path := os.Getenv("AUTOLINKS_CONFIG"); path != "" {
		return path
	}

	// Check XDG config directory
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "autolinks", "config.yaml")
	}

	// Fall back to home directory
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "autolinks", "config.yaml")
	}

	return ""
}

// loadDotEnv loads variables from path without overriding ones already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, path string) error {
	// #nosec G304 - The config file path comes from trusted sources (flag, env var or standard locations)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Rules == nil {
		cfg.Rules = []types.Rule{}
	}
	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) error {
	if timeout := os.Getenv("AUTOLINKS_MATCH_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid AUTOLINKS_MATCH_TIMEOUT: %w", err)
		}
		cfg.MatchTimeout = d
	}

	if format := os.Getenv("AUTOLINKS_FORMAT"); format != "" {
		cfg.Render.Format = format
	}

	if addr := os.Getenv("AUTOLINKS_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}

	if logFormat := os.Getenv("AUTOLINKS_LOG_FORMAT"); logFormat != "" {
		cfg.LogFormat = logFormat
	}

	if err := envBool("AUTOLINKS_SANITIZE", &cfg.Render.Sanitize); err != nil {
		return err
	}

	if err := envBool("AUTOLINKS_DEBUG", &cfg.Debug); err != nil {
		return err
	}

	return nil
}

func envBool(name string, dst *bool) error {
	value := os.Getenv(name)
	switch value {
	case "":
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		return fmt.Errorf("invalid %s value: %q (use true/false)", name, value)
	}
	return nil
}

// validate validates the configuration. Rule patterns are not checked here:
// an invalid pattern only disables its own rule.
func validate(cfg *Config) error {
	if cfg.MatchTimeout < 0 {
		return fmt.Errorf("match_timeout must be non-negative")
	}

	switch cfg.Render.Format {
	case FormatMarkdown, FormatHTML, FormatTerminal:
	default:
		return fmt.Errorf("render.format must be one of markdown, html, terminal (got %q)", cfg.Render.Format)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json (got %q)", cfg.LogFormat)
	}

	if cfg.Server.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("server.rate_limit.max_requests must be non-negative")
	}

	if cfg.Server.RateLimit.Window < 0 {
		return fmt.Errorf("server.rate_limit.window must be non-negative")
	}

	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must be non-negative")
	}

	return nil
}
