// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.opschat/config.yaml or ./config.yaml)
//  3. Default values
//
// Categories:
//   - Monitor: metrics/incident API base URL and OAuth client credentials
//   - Model: local language-model backend host and model name
//   - Redis: cache/session backend connection
//   - TTLs: cached live results, sessions, token safety margin
//   - Server: HTTP listen address
//
// Sensitive fields (OAuth client secret, Redis password) are masked in
// MarshalJSON so the config can be logged safely.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingMonitorURL indicates the monitor API base URL is not set.
	ErrMissingMonitorURL = errors.New("missing monitor API base URL")

	// ErrInvalidMonitorURL indicates the monitor API base URL is malformed.
	ErrInvalidMonitorURL = errors.New("invalid monitor API base URL")

	// ErrMissingClientCredentials indicates the OAuth client id or secret is missing.
	ErrMissingClientCredentials = errors.New("missing OAuth client credentials")

	// ErrInvalidRedisAddr indicates the Redis address is invalid.
	ErrInvalidRedisAddr = errors.New("invalid Redis address")

	// ErrInvalidModelHost indicates the model backend host is invalid.
	ErrInvalidModelHost = errors.New("invalid model backend host")

	// ErrInvalidTTL indicates a TTL value is out of range.
	ErrInvalidTTL = errors.New("invalid TTL")
)

// Default TTL constants. These are configuration defaults, not fixed
// law; live operational data ages in minutes, sessions live for a day.
const (
	DefaultResultTTL    = 5 * time.Minute
	DefaultSessionTTL   = 24 * time.Hour
	DefaultTokenMargin  = 30 * time.Second
	DefaultQueryTimeout = 15 * time.Second
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secrets, update MarshalJSON as well.
type Config struct {
	// Monitor API (metrics/incident backend)
	MonitorURL        string        `mapstructure:"monitor_url" json:"monitor_url"`
	OAuthTokenURL     string        `mapstructure:"oauth_token_url" json:"oauth_token_url"`
	OAuthClientID     string        `mapstructure:"oauth_client_id" json:"oauth_client_id"`
	OAuthClientSecret string        `mapstructure:"oauth_client_secret" json:"oauth_client_secret"` // SENSITIVE: masked in MarshalJSON
	OAuthScopes       []string      `mapstructure:"oauth_scopes" json:"oauth_scopes"`
	TokenSafetyMargin time.Duration `mapstructure:"token_safety_margin" json:"token_safety_margin"`

	// Model backend (local language model)
	ModelHost string `mapstructure:"model_host" json:"model_host"`
	ModelName string `mapstructure:"model_name" json:"model_name"`

	// Redis (cache and session backend)
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE: masked in MarshalJSON
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`

	// TTLs
	ResultTTL  time.Duration `mapstructure:"result_ttl" json:"result_ttl"`
	SessionTTL time.Duration `mapstructure:"session_ttl" json:"session_ttl"`

	// Outbound request timeout for backend calls
	QueryTimeout time.Duration `mapstructure:"query_timeout" json:"query_timeout"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".opschat")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("monitor_url", "")
	v.SetDefault("oauth_token_url", "")
	v.SetDefault("oauth_scopes", []string{"problems.read", "entities.read"})
	v.SetDefault("token_safety_margin", DefaultTokenMargin)

	v.SetDefault("model_host", "http://localhost:11434")
	v.SetDefault("model_name", "llama3.2")

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)

	v.SetDefault("result_ttl", DefaultResultTTL)
	v.SetDefault("session_ttl", DefaultSessionTTL)
	v.SetDefault("query_timeout", DefaultQueryTimeout)

	v.SetDefault("listen_addr", "127.0.0.1:3500")
}

// bindEnvVariables binds environment variables explicitly.
// Secrets are only ever read from the environment, never written to disk.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("monitor_url", "OPSCHAT_MONITOR_URL")
	mustBind("oauth_token_url", "OPSCHAT_OAUTH_TOKEN_URL")
	mustBind("oauth_client_id", "OPSCHAT_CLIENT_ID")
	mustBind("oauth_client_secret", "OPSCHAT_CLIENT_SECRET")

	mustBind("model_host", "OPSCHAT_MODEL_HOST")
	mustBind("model_name", "OPSCHAT_MODEL_NAME")

	mustBind("redis_addr", "OPSCHAT_REDIS_ADDR")
	mustBind("redis_password", "OPSCHAT_REDIS_PASSWORD")

	mustBind("listen_addr", "OPSCHAT_LISTEN_ADDR")
}

// Validate performs fail-fast validation of the loaded configuration.
//
// The monitor API is optional at startup (the orchestrator degrades to the
// model/knowledge cascade without it), but if a base URL is given it must be
// well-formed and accompanied by credentials.
func (c *Config) Validate() error {
	if c.MonitorURL != "" {
		u, err := url.Parse(c.MonitorURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidMonitorURL, c.MonitorURL)
		}
		if c.OAuthTokenURL == "" || c.OAuthClientID == "" || c.OAuthClientSecret == "" {
			return fmt.Errorf("%w: monitor API configured without token URL, client id or secret",
				ErrMissingClientCredentials)
		}
	}

	if c.RedisAddr == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidRedisAddr)
	}

	if c.ModelHost != "" {
		u, err := url.Parse(c.ModelHost)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidModelHost, c.ModelHost)
		}
	}

	if c.ResultTTL <= 0 {
		return fmt.Errorf("%w: result_ttl must be positive, got %v", ErrInvalidTTL, c.ResultTTL)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%w: session_ttl must be positive, got %v", ErrInvalidTTL, c.SessionTTL)
	}
	if c.SessionTTL < c.ResultTTL {
		return fmt.Errorf("%w: session_ttl (%v) shorter than result_ttl (%v)",
			ErrInvalidTTL, c.SessionTTL, c.ResultTTL)
	}

	return nil
}

// MonitorEnabled reports whether the live metrics/incident backend is configured.
func (c *Config) MonitorEnabled() bool {
	return c.MonitorURL != ""
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully masked
// to prevent substring matching; longer ones keep two characters on each end
// for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.OAuthClientSecret = maskSecret(a.OAuthClientSecret)
	a.RedisPassword = maskSecret(a.RedisPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
