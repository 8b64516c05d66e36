package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/kintone/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  domain: "example.cybozu.com"
  timeout: 15s
  headers:
    X-Trace: "on"

app:
  id: 12
  guest_space_id: 3

auth:
  api_token: "tok"

logging:
  level: debug
  format: json

mirror:
  dsn: ":memory:"
  page_size: 100
  concurrency: 2
  interval: 1m
  fields: [title, amount]
  prune: false
`

	cfg := writeAndLoad(t, content)

	if cfg.BaseURL() != "https://example.cybozu.com" {
		t.Errorf("BaseURL() = %s, want https://example.cybozu.com", cfg.BaseURL())
	}
	if cfg.Site.Timeout != 15*time.Second {
		t.Errorf("Site.Timeout = %v, want 15s", cfg.Site.Timeout)
	}
	if cfg.Site.Headers["X-Trace"] != "on" {
		t.Errorf("Site.Headers = %v", cfg.Site.Headers)
	}
	if cfg.App.ID != 12 || cfg.App.GuestSpaceID != 3 {
		t.Errorf("App = %+v, want id 12 guest 3", cfg.App)
	}
	if cfg.Auth.APIToken != "tok" {
		t.Errorf("Auth.APIToken = %s, want tok", cfg.Auth.APIToken)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Mirror.PageSize != 100 || cfg.Mirror.Concurrency != 2 || cfg.Mirror.Interval != time.Minute {
		t.Errorf("Mirror = %+v", cfg.Mirror)
	}
	if len(cfg.Mirror.Fields) != 2 || cfg.Mirror.Fields[1] != "amount" {
		t.Errorf("Mirror.Fields = %v", cfg.Mirror.Fields)
	}
	if cfg.Mirror.PruneEnabled() {
		t.Error("PruneEnabled() = true, want false")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, minimalConfig())

	if cfg.Site.Timeout != 30*time.Second {
		t.Errorf("default Site.Timeout = %v, want 30s", cfg.Site.Timeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("default Logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.Addr != ":9090" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics = %+v", cfg.Metrics)
	}
	if cfg.Mirror.DSN != "kintone.db" {
		t.Errorf("default Mirror.DSN = %s, want kintone.db", cfg.Mirror.DSN)
	}
	if cfg.Mirror.PageSize != 500 || cfg.Mirror.Concurrency != 4 || cfg.Mirror.Interval != 15*time.Minute {
		t.Errorf("default Mirror = %+v", cfg.Mirror)
	}
	if !cfg.Mirror.PruneEnabled() {
		t.Error("PruneEnabled() should default to true")
	}
}

func TestConfig_BaseURL(t *testing.T) {
	tests := []struct {
		site config.SiteConfig
		want string
	}{
		{config.SiteConfig{Domain: "a.cybozu.com"}, "https://a.cybozu.com"},
		{config.SiteConfig{BaseURL: "http://localhost:8080/"}, "http://localhost:8080"},
		{config.SiteConfig{Domain: "a.cybozu.com", BaseURL: "https://b.kintone.com"}, "https://b.kintone.com"},
	}
	for _, tt := range tests {
		cfg := config.Config{Site: tt.site}
		if got := cfg.BaseURL(); got != tt.want {
			t.Errorf("BaseURL(%+v) = %s, want %s", tt.site, got, tt.want)
		}
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_KINTONE_TOKEN", "from-env")

	cfg := writeAndLoad(t, minimalConfig()+`
auth:
  api_token: "${TEST_KINTONE_TOKEN}"
`)

	if cfg.Auth.APIToken != "from-env" {
		t.Errorf("Auth.APIToken = %s, want from-env", cfg.Auth.APIToken)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing site", "app:\n  id: 1\n", "site.domain"},
		{"bad base url", "site:\n  base_url: \"ftp://x\"\napp:\n  id: 1\n", "site.base_url"},
		{"missing app", "site:\n  domain: a.cybozu.com\n", "app.id"},
		{"negative rate limit", "site:\n  domain: a.cybozu.com\n  rate_limit: -1\napp:\n  id: 1\n", "site.rate_limit"},
		{"negative guest space", minimalConfig() + "  guest_space_id: -1\n", "guest_space_id"},
		{"password without user", minimalConfig() + "auth:\n  password: x\n", "auth.user"},
		{"basic password without user", minimalConfig() + "auth:\n  basic_password: x\n", "basic_user"},
		{"bad log level", minimalConfig() + "logging:\n  level: loud\n", "logging.level"},
		{"bad log format", minimalConfig() + "logging:\n  format: xml\n", "logging.format"},
		{"bad metrics path", minimalConfig() + "metrics:\n  path: metrics\n", "metrics.path"},
		{"page size too large", minimalConfig() + "mirror:\n  page_size: 501\n", "page_size"},
		{"page size negative", minimalConfig() + "mirror:\n  page_size: -5\n", "page_size"},
		{"concurrency negative", minimalConfig() + "mirror:\n  concurrency: -1\n", "concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_UserWithoutPassword(t *testing.T) {
	// The CLI prompts for the missing password.
	cfg := writeAndLoad(t, minimalConfig()+"auth:\n  user: alice\n")
	if cfg.Auth.User != "alice" || cfg.Auth.Password != "" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KINTONE_DOMAIN", "env.cybozu.com")
	t.Setenv("KINTONE_APP_ID", "77")
	t.Setenv("KINTONE_GUEST_SPACE_ID", "5")
	t.Setenv("KINTONE_USER", "bob")
	t.Setenv("KINTONE_PASSWORD", "pw")
	t.Setenv("KINTONE_BASIC_USER", "gate")
	t.Setenv("KINTONE_BASIC_PASSWORD", "gpw")
	t.Setenv("KINTONE_TIMEOUT", "5s")
	t.Setenv("KINTONE_RATE_LIMIT", "10")
	t.Setenv("KINTONE_LOG_LEVEL", "warn")
	t.Setenv("KINTONE_LOG_FORMAT", "json")
	t.Setenv("KINTONE_METRICS_ENABLED", "yes")
	t.Setenv("KINTONE_METRICS_ADDR", "127.0.0.1:9999")
	t.Setenv("KINTONE_MIRROR_DSN", "/tmp/m.db")
	t.Setenv("KINTONE_MIRROR_PAGE_SIZE", "50")
	t.Setenv("KINTONE_MIRROR_CONCURRENCY", "8")
	t.Setenv("KINTONE_MIRROR_INTERVAL", "30s")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}

	if cfg.BaseURL() != "https://env.cybozu.com" {
		t.Errorf("BaseURL() = %s", cfg.BaseURL())
	}
	if cfg.App.ID != 77 || cfg.App.GuestSpaceID != 5 {
		t.Errorf("App = %+v", cfg.App)
	}
	want := config.AuthConfig{User: "bob", Password: "pw", BasicUser: "gate", BasicPassword: "gpw"}
	if cfg.Auth != want {
		t.Errorf("Auth = %+v, want %+v", cfg.Auth, want)
	}
	if cfg.Site.Timeout != 5*time.Second {
		t.Errorf("Site.Timeout = %v", cfg.Site.Timeout)
	}
	if cfg.Site.RateLimit != 10 {
		t.Errorf("Site.RateLimit = %d, want 10", cfg.Site.RateLimit)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "127.0.0.1:9999" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if cfg.Mirror.DSN != "/tmp/m.db" || cfg.Mirror.PageSize != 50 || cfg.Mirror.Concurrency != 8 || cfg.Mirror.Interval != 30*time.Second {
		t.Errorf("Mirror = %+v", cfg.Mirror)
	}
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	t.Setenv("KINTONE_DOMAIN", "env.cybozu.com")
	t.Setenv("KINTONE_APP_ID", "")

	if _, err := config.LoadFromEnv(); err == nil {
		t.Error("expected error without an app id")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("KINTONE_APP_ID", "99")
	t.Setenv("KINTONE_API_TOKEN", "env-token")

	cfg := writeAndLoad(t, minimalConfig()+"auth:\n  api_token: file-token\n")

	if cfg.App.ID != 99 {
		t.Errorf("App.ID = %d, want env override 99", cfg.App.ID)
	}
	if cfg.Auth.APIToken != "env-token" {
		t.Errorf("Auth.APIToken = %s, want env-token", cfg.Auth.APIToken)
	}
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("KINTONE_TIMEOUT", "soon")
	t.Setenv("KINTONE_MIRROR_PAGE_SIZE", "many")
	t.Setenv("KINTONE_GUEST_SPACE_ID", "x")

	cfg := writeAndLoad(t, minimalConfig())

	if cfg.Site.Timeout != 30*time.Second {
		t.Errorf("Site.Timeout = %v, want default", cfg.Site.Timeout)
	}
	if cfg.Mirror.PageSize != 500 {
		t.Errorf("Mirror.PageSize = %d, want default", cfg.Mirror.PageSize)
	}
	if cfg.App.GuestSpaceID != 0 {
		t.Errorf("App.GuestSpaceID = %d, want 0", cfg.App.GuestSpaceID)
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Run("file exists", func(t *testing.T) {
		path := writeConfig(t, minimalConfig())
		cfg, err := config.LoadWithFallback(path)
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.App.ID != 1 {
			t.Errorf("App.ID = %d, want 1", cfg.App.ID)
		}
	})

	t.Run("env only", func(t *testing.T) {
		t.Setenv("KINTONE_BASE_URL", "http://localhost:1234")
		t.Setenv("KINTONE_APP_ID", "4")
		cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.BaseURL() != "http://localhost:1234" {
			t.Errorf("BaseURL() = %s", cfg.BaseURL())
		}
	})

	t.Run("no config", func(t *testing.T) {
		t.Setenv("KINTONE_DOMAIN", "")
		t.Setenv("KINTONE_BASE_URL", "")
		if _, err := config.LoadWithFallback(""); err == nil {
			t.Error("expected error without file or env")
		}
	})
}

func TestHasEnvConfig(t *testing.T) {
	t.Setenv("KINTONE_DOMAIN", "")
	t.Setenv("KINTONE_BASE_URL", "")
	if config.HasEnvConfig() {
		t.Error("HasEnvConfig() = true with no site variables")
	}

	t.Setenv("KINTONE_DOMAIN", "x.cybozu.com")
	if !config.HasEnvConfig() {
		t.Error("HasEnvConfig() = false with KINTONE_DOMAIN set")
	}
}

func TestParse_BoolValues(t *testing.T) {
	for _, v := range []string{"true", "1", "yes", "on", "TRUE", " On "} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("KINTONE_METRICS_ENABLED", v)
			cfg := writeAndLoad(t, minimalConfig())
			if !cfg.Metrics.Enabled {
				t.Errorf("KINTONE_METRICS_ENABLED=%q should enable metrics", v)
			}
		})
	}
	t.Setenv("KINTONE_METRICS_ENABLED", "nope")
	if cfg := writeAndLoad(t, minimalConfig()); cfg.Metrics.Enabled {
		t.Error("KINTONE_METRICS_ENABLED=nope should not enable metrics")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := writeAndLoadErr(t, "site: [unclosed"); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func minimalConfig() string {
	return `
site:
  domain: "example.cybozu.com"
app:
  id: 1
`
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()
	return config.Load(writeConfig(t, content))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kintone.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
