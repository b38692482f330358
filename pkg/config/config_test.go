package config

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ideaspaper/reqkit/pkg/auth"
	"github.com/ideaspaper/reqkit/pkg/client"
	reqerrors "github.com/ideaspaper/reqkit/pkg/errors"
	"github.com/ideaspaper/reqkit/pkg/transport"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.FollowRedirects {
		t.Error("FollowRedirects should be true by default")
	}
	if cfg.MaxRedirects != 10 {
		t.Errorf("MaxRedirects should be 10, got %d", cfg.MaxRedirects)
	}
	if cfg.TimeoutMs != 30000 {
		t.Errorf("TimeoutMs should be 30000, got %d", cfg.TimeoutMs)
	}
	if !cfg.RememberCookies {
		t.Error("RememberCookies should be true by default")
	}
	if cfg.InsecureSSL {
		t.Error("InsecureSSL should be false by default")
	}
	if !cfg.ShowColors {
		t.Error("ShowColors should be true by default")
	}
	if cfg.DefaultHeaders["User-Agent"] != "reqkit/0.1.0" {
		t.Errorf("User-Agent should be 'reqkit/0.1.0', got %s", cfg.DefaultHeaders["User-Agent"])
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadConfigFromDir_NoFile(t *testing.T) {
	cfg, err := LoadConfigFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfigFromDir failed: %v", err)
	}
	if !cfg.FollowRedirects {
		t.Error("FollowRedirects should be true by default")
	}
	if cfg.MaxRedirects != 10 {
		t.Errorf("MaxRedirects should default to 10, got %d", cfg.MaxRedirects)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel should default to warn, got %q", cfg.LogLevel)
	}
}

func TestLoadConfigFromDir_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `{
		"followRedirect": false,
		"timeoutInMilliseconds": 5000,
		"transport": "http1",
		"rateLimit": 2.5
	}`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfigFromDir(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfigFromDir failed: %v", err)
	}

	if cfg.FollowRedirects {
		t.Error("FollowRedirects should be false")
	}
	if cfg.TimeoutMs != 5000 {
		t.Errorf("TimeoutMs should be 5000, got %d", cfg.TimeoutMs)
	}
	if cfg.Transport != "http1" {
		t.Errorf("Transport should be http1, got %q", cfg.Transport)
	}
	if cfg.RateLimit != 2.5 {
		t.Errorf("RateLimit should be 2.5, got %v", cfg.RateLimit)
	}
	if !cfg.RememberCookies {
		t.Error("unset keys should keep their defaults")
	}
	if cfg.Path() != filepath.Join(tmpDir, "config.json") {
		t.Errorf("Path() = %q", cfg.Path())
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.json")
	configContent := `{
		"insecureSSL": true,
		"proxy": "http://proxy.example.com:8080",
		"excludeHostsForProxy": ["localhost", "internal"]
	}`
	if err := os.WriteFile(path, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile failed: %v", err)
	}
	if !cfg.InsecureSSL {
		t.Error("InsecureSSL should be true")
	}
	if cfg.Proxy != "http://proxy.example.com:8080" {
		t.Errorf("Proxy should be 'http://proxy.example.com:8080', got %s", cfg.Proxy)
	}
	if len(cfg.ExcludeHostsForProxy) != 2 {
		t.Errorf("ExcludeHostsForProxy = %v", cfg.ExcludeHostsForProxy)
	}
}

func TestLoadConfigFromFile_Missing(t *testing.T) {
	cfg, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got %v", err)
	}
	if cfg.TimeoutMs != 30000 {
		t.Errorf("TimeoutMs = %d, want default", cfg.TimeoutMs)
	}
}

func TestLoadConfigFromFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfigFromFile(path)
	if !errors.Is(err, reqerrors.ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("REQKIT_MAXREDIRECTS", "3")
	cfg, err := LoadConfigFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfigFromDir failed: %v", err)
	}
	if cfg.MaxRedirects != 3 {
		t.Errorf("MaxRedirects should come from REQKIT_MAXREDIRECTS, got %d", cfg.MaxRedirects)
	}
}

func TestConfigSaveAndReload(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.configPath = filepath.Join(tmpDir, "nested", "config.json")
	cfg.TimeoutMs = 10000
	cfg.LogLevel = "debug"

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadConfigFromDir(filepath.Join(tmpDir, "nested"))
	if err != nil {
		t.Fatalf("LoadConfigFromDir failed: %v", err)
	}
	if loaded.TimeoutMs != 10000 {
		t.Errorf("TimeoutMs should be 10000, got %d", loaded.TimeoutMs)
	}
	if loaded.LogLevel != "debug" {
		t.Errorf("LogLevel should be debug, got %s", loaded.LogLevel)
	}

	if err := os.WriteFile(loaded.Path(), []byte(`{"timeoutInMilliseconds": 42}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := loaded.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if loaded.TimeoutMs != 42 {
		t.Errorf("TimeoutMs after reload = %d, want 42", loaded.TimeoutMs)
	}
}

func TestReloadWithoutViper(t *testing.T) {
	if err := DefaultConfig().Reload(); !errors.Is(err, reqerrors.ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{"negative timeout", func(c *Config) { c.TimeoutMs = -1 }, "timeoutInMilliseconds"},
		{"negative redirects", func(c *Config) { c.MaxRedirects = -1 }, "maxRedirects"},
		{"negative rate", func(c *Config) { c.RateLimit = -2 }, "rateLimit"},
		{"negative retries", func(c *Config) { c.Retries = -1 }, "retries"},
		{"unknown transport", func(c *Config) { c.Transport = "spdy" }, "transport"},
		{"cert without key", func(c *Config) { c.ClientCert = "/c.pem" }, "clientCert"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "logLevel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var ce *reqerrors.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if ce.Key != tt.wantKey {
				t.Errorf("Key = %q, want %q", ce.Key, tt.wantKey)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelWarn,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}

func TestExportToJSON(t *testing.T) {
	out, err := DefaultConfig().ExportToJSON()
	if err != nil {
		t.Fatalf("ExportToJSON failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if decoded["maxRedirects"] != float64(10) {
		t.Errorf("maxRedirects = %v", decoded["maxRedirects"])
	}
}

func TestLoadEnv(t *testing.T) {
	vars := map[string]string{
		"HTTP_BEARER_TOKEN": "tok",
		"HTTPS_PROXY":       "http://proxy.local:3128",
		"NO_PROXY":          "internal,localhost",
	}
	env := LoadEnv(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	})

	if env.Auth.Kind() != auth.KindBearer {
		t.Errorf("Auth kind = %v, want bearer", env.Auth.Kind())
	}
	if env.Proxy.HTTPSProxy == nil || env.Proxy.HTTPSProxy.Host != "proxy.local:3128" {
		t.Errorf("HTTPSProxy = %v", env.Proxy.HTTPSProxy)
	}
	if len(env.Proxy.Bypass) != 2 {
		t.Errorf("Bypass = %v", env.Proxy.Bypass)
	}
}

func TestClientOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FollowRedirects = false
	cfg.TimeoutMs = 1500
	cfg.DefaultHeaders["X-Team"] = "core"
	cfg.RememberCookies = false

	env := Env{Auth: auth.Bearer("from-env")}
	opts, err := cfg.ClientOptions(env)
	if err != nil {
		t.Fatalf("ClientOptions failed: %v", err)
	}

	mock := transport.NewMock(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return transport.NewResponse(http.StatusOK, ""), nil
	})
	c, err := client.New(append(opts, client.WithTransport(mock))...)
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}

	p := c.Policy()
	if p.FollowRedirects {
		t.Error("redirects should be disabled")
	}
	if p.Timeouts.Overall != 1500*time.Millisecond {
		t.Errorf("Overall timeout = %v", p.Timeouts.Overall)
	}

	if _, err := c.Get("http://example.com").Send(context.Background()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	sent := mock.LastRequest()
	if sent.Header.Get("X-Team") != "core" {
		t.Errorf("X-Team = %q", sent.Header.Get("X-Team"))
	}
	if sent.Header.Get("Authorization") != "Bearer from-env" {
		t.Errorf("Authorization = %q", sent.Header.Get("Authorization"))
	}
}

func TestClientOptionsConnectOnlyKeepsDefaultDeadline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeoutMs = 0
	cfg.ConnectTimeoutMs = 500

	opts, err := cfg.ClientOptions(Env{})
	if err != nil {
		t.Fatalf("ClientOptions failed: %v", err)
	}
	c, err := client.New(append(opts, client.WithTransport(transport.NewMock(nil)))...)
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}

	p := c.Policy().Timeouts
	if p.Connect != 500*time.Millisecond {
		t.Errorf("Connect = %v, want 500ms", p.Connect)
	}
	if d, ok := p.Effective(); !ok || d != 30*time.Second {
		t.Errorf("Effective() = %v, %v; want 30s, true", d, ok)
	}
}

func TestClientOptionsRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retries = 2

	opts, err := cfg.ClientOptions(Env{})
	if err != nil {
		t.Fatalf("ClientOptions failed: %v", err)
	}
	mock := transport.NewMock(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return transport.NewResponse(http.StatusServiceUnavailable, ""), nil
	})
	c, err := client.New(append(opts, client.WithTransport(mock))...)
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}

	resp, err := c.Get("http://example.com").Send(context.Background())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	resp.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if n := mock.RequestCount(); n != 3 {
		t.Errorf("RequestCount = %d, want 3", n)
	}
}

func TestClientOptionsProxy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Proxy = "://bad"
	if _, err := cfg.ClientOptions(Env{}); !errors.Is(err, reqerrors.ErrConfig) {
		t.Errorf("expected ErrConfig for a bad proxy, got %v", err)
	}

	cfg.Transport = "spdy"
	cfg.Proxy = ""
	if _, err := cfg.ClientOptions(Env{}); !errors.Is(err, reqerrors.ErrConfig) {
		t.Errorf("expected ErrConfig for a bad transport, got %v", err)
	}
}
