// Package config loads the CLI configuration file and turns it into client
// options.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/internal/paths"
	"github.com/ideaspaper/reqkit/pkg/auth"
	"github.com/ideaspaper/reqkit/pkg/client"
	"github.com/ideaspaper/reqkit/pkg/errors"
	"github.com/ideaspaper/reqkit/pkg/middleware"
	"github.com/ideaspaper/reqkit/pkg/proxy"
	"github.com/ideaspaper/reqkit/pkg/tlsconfig"
	"github.com/ideaspaper/reqkit/pkg/transport"
)

const (
	configFileName = "config"
	configFileType = "json"
	envPrefix      = "REQKIT"
)

// Config represents the application configuration
type Config struct {
	// Timeouts, zero means unset
	TimeoutMs        int `json:"timeoutInMilliseconds" mapstructure:"timeoutInMilliseconds"`
	ConnectTimeoutMs int `json:"connectTimeoutInMilliseconds" mapstructure:"connectTimeoutInMilliseconds"`
	ReadTimeoutMs    int `json:"readTimeoutInMilliseconds" mapstructure:"readTimeoutInMilliseconds"`

	FollowRedirects bool `json:"followRedirect" mapstructure:"followRedirect"`
	MaxRedirects    int  `json:"maxRedirects" mapstructure:"maxRedirects"`
	RememberCookies bool `json:"rememberCookiesForSubsequentRequests" mapstructure:"rememberCookiesForSubsequentRequests"`

	DefaultHeaders map[string]string `json:"defaultHeaders" mapstructure:"defaultHeaders"`

	// TLS settings
	InsecureSSL bool   `json:"insecureSSL" mapstructure:"insecureSSL"`
	CACert      string `json:"caCert" mapstructure:"caCert"`
	ClientCert  string `json:"clientCert" mapstructure:"clientCert"`
	ClientKey   string `json:"clientKey" mapstructure:"clientKey"`

	// Proxy settings
	Proxy                string   `json:"proxy" mapstructure:"proxy"`
	ExcludeHostsForProxy []string `json:"excludeHostsForProxy" mapstructure:"excludeHostsForProxy"`

	// Transport is one of http1, http2 or h2c; empty selects http2.
	Transport string `json:"transport" mapstructure:"transport"`

	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64 `json:"rateLimit" mapstructure:"rateLimit"`

	// Retries resends on 429, 502, 503 and 504 responses and on transport
	// errors; zero sends once.
	Retries int `json:"retries" mapstructure:"retries"`

	// Display settings
	ShowColors bool   `json:"showColors" mapstructure:"showColors"`
	LogLevel   string `json:"logLevel" mapstructure:"logLevel"`

	// Internal: viper instance and config path (not serialized)
	v          *viper.Viper `json:"-" mapstructure:"-"`
	configPath string       `json:"-" mapstructure:"-"`
}

// DefaultConfig returns a new config with default values
func DefaultConfig() *Config {
	return &Config{
		TimeoutMs:       int(constants.DefaultTimeout / time.Millisecond),
		FollowRedirects: true,
		MaxRedirects:    constants.DefaultMaxRedirects,
		RememberCookies: true,
		DefaultHeaders: map[string]string{
			constants.HeaderUserAgent: constants.DefaultUserAgent,
		},
		ShowColors: true,
		LogLevel:   "warn",
	}
}

// setDefaults mirrors DefaultConfig in viper so partial files and env
// overrides merge over it.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("timeoutInMilliseconds", d.TimeoutMs)
	v.SetDefault("connectTimeoutInMilliseconds", 0)
	v.SetDefault("readTimeoutInMilliseconds", 0)
	v.SetDefault("followRedirect", d.FollowRedirects)
	v.SetDefault("maxRedirects", d.MaxRedirects)
	v.SetDefault("rememberCookiesForSubsequentRequests", d.RememberCookies)
	v.SetDefault("defaultHeaders", d.DefaultHeaders)
	v.SetDefault("insecureSSL", false)
	v.SetDefault("caCert", "")
	v.SetDefault("clientCert", "")
	v.SetDefault("clientKey", "")
	v.SetDefault("proxy", "")
	v.SetDefault("excludeHostsForProxy", []string{})
	v.SetDefault("transport", "")
	v.SetDefault("rateLimit", 0.0)
	v.SetDefault("retries", 0)
	v.SetDefault("showColors", d.ShowColors)
	v.SetDefault("logLevel", d.LogLevel)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads configuration from ~/.reqkit/config.json
func LoadConfig() (*Config, error) {
	path, err := paths.DefaultConfigPath()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get home directory")
	}
	return LoadConfigFromDir(filepath.Dir(path))
}

// LoadConfigFromDir loads config.json from dir. A missing file yields the defaults.
func LoadConfigFromDir(dir string) (*Config, error) {
	v := newViper()
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)
	return load(v, filepath.Join(dir, configFileName+"."+configFileType))
}

// LoadConfigFromFile loads configuration from a specific file path
func LoadConfigFromFile(filePath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(filePath)
	return load(v, filePath)
}

func load(v *viper.Viper, path string) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, errors.NewConfigError("", "failed to read config file: "+err.Error())
		}
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.v = v
	cfg.configPath = path
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.NewConfigError("", "failed to parse config file: "+err.Error())
	}
	if cfg.DefaultHeaders == nil {
		cfg.DefaultHeaders = make(map[string]string)
	}
	return cfg, nil
}

// Path returns the file the config was loaded from or will be saved to.
func (c *Config) Path() string { return c.configPath }

// Validate rejects values no client could run with.
func (c *Config) Validate() error {
	for key, ms := range map[string]int{
		"timeoutInMilliseconds":        c.TimeoutMs,
		"connectTimeoutInMilliseconds": c.ConnectTimeoutMs,
		"readTimeoutInMilliseconds":    c.ReadTimeoutMs,
	} {
		if ms < 0 {
			return errors.NewConfigError(key, "must not be negative")
		}
	}
	if c.MaxRedirects < 0 {
		return errors.NewConfigError("maxRedirects", "must not be negative")
	}
	if c.RateLimit < 0 {
		return errors.NewConfigError("rateLimit", "must not be negative")
	}
	if c.Retries < 0 {
		return errors.NewConfigError("retries", "must not be negative")
	}
	switch c.Transport {
	case "", transport.FlavorHTTP1, transport.FlavorHTTP2, transport.FlavorH2C:
	default:
		return errors.NewConfigError("transport", fmt.Sprintf("unknown transport %q", c.Transport))
	}
	if (c.ClientCert == "") != (c.ClientKey == "") {
		return errors.NewConfigError("clientCert", "clientCert and clientKey must be set together")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels. Empty is warn.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelWarn, errors.NewConfigError("logLevel", fmt.Sprintf("unknown level %q", s))
}

// Save writes the configuration to its file, creating the directory.
func (c *Config) Save() error {
	if c.configPath == "" {
		path, err := paths.DefaultConfigPath()
		if err != nil {
			return errors.Wrap(err, "failed to get home directory")
		}
		c.configPath = path
	}
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if c.v == nil {
		c.v = newViper()
	}

	c.v.Set("timeoutInMilliseconds", c.TimeoutMs)
	c.v.Set("connectTimeoutInMilliseconds", c.ConnectTimeoutMs)
	c.v.Set("readTimeoutInMilliseconds", c.ReadTimeoutMs)
	c.v.Set("followRedirect", c.FollowRedirects)
	c.v.Set("maxRedirects", c.MaxRedirects)
	c.v.Set("rememberCookiesForSubsequentRequests", c.RememberCookies)
	c.v.Set("defaultHeaders", c.DefaultHeaders)
	c.v.Set("insecureSSL", c.InsecureSSL)
	c.v.Set("caCert", c.CACert)
	c.v.Set("clientCert", c.ClientCert)
	c.v.Set("clientKey", c.ClientKey)
	c.v.Set("proxy", c.Proxy)
	c.v.Set("excludeHostsForProxy", c.ExcludeHostsForProxy)
	c.v.Set("transport", c.Transport)
	c.v.Set("rateLimit", c.RateLimit)
	c.v.Set("retries", c.Retries)
	c.v.Set("showColors", c.ShowColors)
	c.v.Set("logLevel", c.LogLevel)

	return c.v.WriteConfigAs(c.configPath)
}

// ExportToJSON renders the effective settings as indented JSON.
func (c *Config) ExportToJSON() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal config")
	}
	return string(data), nil
}

// Reload re-reads the config file into c.
func (c *Config) Reload() error {
	if c.v == nil {
		return errors.NewConfigError("", "viper not initialized")
	}
	if err := c.v.ReadInConfig(); err != nil {
		return errors.NewConfigError("", "failed to reload config: "+err.Error())
	}
	fresh, err := decode(c.v)
	if err != nil {
		return err
	}
	fresh.v, fresh.configPath = c.v, c.configPath
	*c = *fresh
	return nil
}

// WatchConfig calls onChange with a freshly decoded Config each time the
// file changes. Decoding failures are ignored until the next change.
func (c *Config) WatchConfig(onChange func(*Config)) {
	if c.v == nil {
		return
	}
	var mu sync.Mutex
	v, path := c.v, c.configPath
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()
		fresh, err := decode(v)
		if err != nil {
			return
		}
		fresh.v, fresh.configPath = v, path
		if onChange != nil {
			onChange(fresh)
		}
	})
	v.WatchConfig()
}

// Env holds the defaults read from the process environment at startup.
type Env struct {
	Auth  auth.Policy
	Proxy proxy.Policy
}

// LoadEnv reads HTTP_* auth variables and the proxy variables through lookup.
func LoadEnv(lookup func(string) (string, bool)) Env {
	return Env{
		Auth:  auth.FromEnv(lookup),
		Proxy: proxy.FromEnv(lookup),
	}
}

// ClientOptions translates the config, plus env defaults, into client
// options. The proxy from the file wins over the environment.
func (c *Config) ClientOptions(env Env) ([]client.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var opts []client.Option
	if c.TimeoutMs > 0 {
		opts = append(opts, client.WithTimeout(time.Duration(c.TimeoutMs)*time.Millisecond))
	}
	if c.ConnectTimeoutMs > 0 {
		opts = append(opts, client.WithConnectTimeout(time.Duration(c.ConnectTimeoutMs)*time.Millisecond))
	}
	if c.ReadTimeoutMs > 0 {
		opts = append(opts, client.WithReadTimeout(time.Duration(c.ReadTimeoutMs)*time.Millisecond))
	}

	if c.FollowRedirects {
		opts = append(opts, client.WithMaxRedirects(c.MaxRedirects))
	} else {
		opts = append(opts, client.WithoutRedirects())
	}

	if !c.RememberCookies {
		opts = append(opts, client.WithCookieStore(nil))
	}

	for _, name := range slices.Sorted(maps.Keys(c.DefaultHeaders)) {
		opts = append(opts, client.WithDefaultHeader(name, c.DefaultHeaders[name]))
	}

	tlsPolicy := tlsconfig.New()
	if c.InsecureSSL {
		tlsPolicy = tlsconfig.Insecure()
	}
	if c.CACert != "" {
		tlsPolicy = tlsPolicy.WithCA(c.CACert)
	}
	if c.ClientCert != "" {
		tlsPolicy = tlsPolicy.WithClientCert(c.ClientCert, c.ClientKey)
	}
	opts = append(opts, client.WithTLS(tlsPolicy))

	proxyPolicy := env.Proxy
	if c.Proxy != "" {
		b := proxy.NewBuilder().All(c.Proxy)
		for _, host := range c.ExcludeHostsForProxy {
			b = b.Bypass(host)
		}
		p, err := b.Build()
		if err != nil {
			return nil, err
		}
		proxyPolicy = p
	}
	if proxyPolicy.Enabled() {
		opts = append(opts, client.WithProxy(proxyPolicy))
	}

	if !env.Auth.IsNone() {
		opts = append(opts, client.WithAuth(env.Auth))
	}
	if c.Transport != "" {
		opts = append(opts, client.WithTransportName(c.Transport))
	}
	if c.RateLimit > 0 {
		opts = append(opts, client.WithMiddleware(middleware.RateLimit(c.RateLimit, max(1, int(c.RateLimit)))))
	}
	if c.Retries > 0 {
		retry := middleware.DefaultRetryPolicy()
		retry.MaxRetries = c.Retries
		opts = append(opts, client.WithMiddleware(middleware.Retry(retry)))
	}
	return opts, nil
}
