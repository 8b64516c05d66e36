// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KINTONE_"

// Config is the root configuration structure.
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	App     AppConfig     `yaml:"app"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Mirror  MirrorConfig  `yaml:"mirror"`
}

// SiteConfig locates the kintone domain. Domain "example.cybozu.com" is
// shorthand for BaseURL "https://example.cybozu.com".
type SiteConfig struct {
	Domain    string            `yaml:"domain"`
	BaseURL   string            `yaml:"base_url"`
	Timeout   time.Duration     `yaml:"timeout"`
	UserAgent string            `yaml:"user_agent,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	// RateLimit caps requests per second to the domain; 0 means no cap.
	RateLimit int `yaml:"rate_limit,omitempty"`
}

// AppConfig selects the app, and the guest space it lives in if any.
type AppConfig struct {
	ID           int64 `yaml:"id"`
	GuestSpaceID int64 `yaml:"guest_space_id,omitempty"`
}

// AuthConfig holds credentials. Password authentication is used when user
// and password are set; otherwise the API token.
type AuthConfig struct {
	User          string `yaml:"user,omitempty"`
	Password      string `yaml:"password,omitempty"`
	APIToken      string `yaml:"api_token,omitempty"`
	BasicUser     string `yaml:"basic_user,omitempty"`
	BasicPassword string `yaml:"basic_password,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures the Prometheus endpoint served by mirror --watch.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// MirrorConfig configures the local copy.
type MirrorConfig struct {
	DSN         string        `yaml:"dsn"`
	PageSize    int           `yaml:"page_size"`
	Concurrency int           `yaml:"concurrency"`
	Interval    time.Duration `yaml:"interval"`
	Fields      []string      `yaml:"fields,omitempty"`
	Filter      string        `yaml:"filter,omitempty"`
	Prune       *bool         `yaml:"prune,omitempty"`
}

// PruneEnabled reports whether stale records are deleted; on unless
// disabled explicitly.
func (m MirrorConfig) PruneEnabled() bool {
	return m.Prune == nil || *m.Prune
}

// BaseURL returns the URL requests are sent to.
func (c *Config) BaseURL() string {
	if c.Site.BaseURL != "" {
		return strings.TrimRight(c.Site.BaseURL, "/")
	}
	return "https://" + c.Site.Domain
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML, expanding ${VAR} references and
// applying KINTONE_* overrides and defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	KINTONE_DOMAIN             - kintone domain, e.g. example.cybozu.com
//	KINTONE_BASE_URL           - full base URL, overrides KINTONE_DOMAIN
//	KINTONE_TIMEOUT            - request timeout (default: 30s)
//	KINTONE_RATE_LIMIT         - requests per second, 0 for no cap
//	KINTONE_APP_ID             - app id (required)
//	KINTONE_GUEST_SPACE_ID     - guest space id
//	KINTONE_USER               - login name
//	KINTONE_PASSWORD           - password
//	KINTONE_API_TOKEN          - API token
//	KINTONE_BASIC_USER         - basic auth user
//	KINTONE_BASIC_PASSWORD     - basic auth password
//	KINTONE_LOG_LEVEL          - debug, info, warn, error (default: info)
//	KINTONE_LOG_FORMAT         - json or console (default: console)
//	KINTONE_METRICS_ENABLED    - serve /metrics in mirror --watch
//	KINTONE_METRICS_ADDR       - listen address (default: :9090)
//	KINTONE_MIRROR_DSN         - SQLite path (default: kintone.db)
//	KINTONE_MIRROR_PAGE_SIZE   - records per request, 1-500 (default: 500)
//	KINTONE_MIRROR_CONCURRENCY - pages fetched in parallel (default: 4)
//	KINTONE_MIRROR_INTERVAL    - pause between runs (default: 15m)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback loads path when it exists, otherwise the environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	if HasEnvConfig() {
		return LoadFromEnv()
	}
	return nil, fmt.Errorf("no configuration found: provide %s or set %sDOMAIN and %sAPP_ID", path, EnvPrefix, EnvPrefix)
}

// HasEnvConfig reports whether the environment names a site.
func HasEnvConfig() bool {
	return os.Getenv(EnvPrefix+"DOMAIN") != "" || os.Getenv(EnvPrefix+"BASE_URL") != ""
}

func env(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// applyEnvOverrides applies KINTONE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Site
	if v := env("DOMAIN"); v != "" {
		cfg.Site.Domain = v
	}
	if v := env("BASE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}
	if v := env("TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Site.Timeout = d
		}
	}
	if v := env("RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Site.RateLimit = n
		}
	}

	// App
	if v := env("APP_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.App.ID = id
		}
	}
	if v := env("GUEST_SPACE_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.App.GuestSpaceID = id
		}
	}

	// Auth
	if v := env("USER"); v != "" {
		cfg.Auth.User = v
	}
	if v := env("PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}
	if v := env("API_TOKEN"); v != "" {
		cfg.Auth.APIToken = v
	}
	if v := env("BASIC_USER"); v != "" {
		cfg.Auth.BasicUser = v
	}
	if v := env("BASIC_PASSWORD"); v != "" {
		cfg.Auth.BasicPassword = v
	}

	// Logging
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics
	if v := env("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := env("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}

	// Mirror
	if v := env("MIRROR_DSN"); v != "" {
		cfg.Mirror.DSN = v
	}
	if v := env("MIRROR_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mirror.PageSize = n
		}
	}
	if v := env("MIRROR_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mirror.Concurrency = n
		}
	}
	if v := env("MIRROR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Mirror.Interval = d
		}
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Site.Timeout == 0 {
		cfg.Site.Timeout = 30 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Mirror.DSN == "" {
		cfg.Mirror.DSN = "kintone.db"
	}
	if cfg.Mirror.PageSize == 0 {
		cfg.Mirror.PageSize = 500
	}
	if cfg.Mirror.Concurrency == 0 {
		cfg.Mirror.Concurrency = 4
	}
	if cfg.Mirror.Interval == 0 {
		cfg.Mirror.Interval = 15 * time.Minute
	}
}

func validate(cfg *Config) error {
	if cfg.Site.Domain == "" && cfg.Site.BaseURL == "" {
		return fmt.Errorf("site.domain or site.base_url is required")
	}
	if cfg.Site.BaseURL != "" {
		u, err := url.Parse(cfg.Site.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
			return fmt.Errorf("site.base_url must be an http(s) URL, got %q", cfg.Site.BaseURL)
		}
	}
	if cfg.Site.Timeout < 0 {
		return fmt.Errorf("site.timeout must not be negative")
	}
	if cfg.Site.RateLimit < 0 {
		return fmt.Errorf("site.rate_limit must not be negative")
	}

	if cfg.App.ID <= 0 {
		return fmt.Errorf("app.id must be a positive integer")
	}
	if cfg.App.GuestSpaceID < 0 {
		return fmt.Errorf("app.guest_space_id must not be negative")
	}

	// A user without a password is completed by the CLI prompt.
	if cfg.Auth.Password != "" && cfg.Auth.User == "" {
		return fmt.Errorf("auth.password is set without auth.user")
	}
	if cfg.Auth.BasicPassword != "" && cfg.Auth.BasicUser == "" {
		return fmt.Errorf("auth.basic_password is set without auth.basic_user")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	if cfg.Mirror.PageSize < 1 || cfg.Mirror.PageSize > 500 {
		return fmt.Errorf("mirror.page_size must be between 1 and 500, got %d", cfg.Mirror.PageSize)
	}
	if cfg.Mirror.Concurrency < 1 {
		return fmt.Errorf("mirror.concurrency must be at least 1, got %d", cfg.Mirror.Concurrency)
	}
	if cfg.Mirror.Interval < 0 {
		return fmt.Errorf("mirror.interval must not be negative")
	}
	return nil
}
