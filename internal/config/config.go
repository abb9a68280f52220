package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/pkg/connector"
	"gopkg.in/yaml.v3"
)

// Environment variables read by finlink.
const (
	EnvMasterKey    = "FINLINK_MASTER_KEY"
	EnvConfig       = "FINLINK_CONFIG"
	EnvCredentials  = "FINLINK_CREDENTIALS"
	EnvAPITokenHash = "FINLINK_API_TOKEN_HASH"
	EnvListen       = "FINLINK_LISTEN"
)

const (
	DefaultPath              = "finlink.yaml"
	DefaultListen            = ":8080"
	DefaultHealthInterval    = 30 * time.Second
	DefaultFailureThreshold  = 3
	DefaultHealthConcurrency = 4
	DefaultStoreType         = "memory"
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 30 * time.Second

	// MinVaultIterations is the lowest PBKDF2 work factor accepted from
	// configuration.
	MinVaultIterations = 100_000
)

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition

	// Getenv defaults to os.Getenv.
	Getenv func(string) string

	// Debug and NoColor carry the global command-line flags.
	Debug   bool
	NoColor bool
	// LogOutput defaults to stderr.
	LogOutput io.Writer

	// AllowWeakKDF lifts the vault.iterations floor. Tests only; it has no
	// file or environment equivalent.
	AllowWeakKDF bool
}

// Definition represents the finlink.yaml structure
type Definition struct {
	Version     int                       `yaml:"version"`
	Server      ServerConfig              `yaml:"server"`
	Logging     LoggingConfig             `yaml:"logging"`
	Vault       VaultConfig               `yaml:"vault"`
	Store       StoreConfig               `yaml:"store"`
	Registry    RegistryConfig            `yaml:"registry"`
	Health      HealthConfig              `yaml:"health"`
	Providers   map[string]EndpointConfig `yaml:"providers,omitempty"`
	Credentials CredentialsConfig         `yaml:"credentials"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Listen         string `yaml:"listen"`
	APITokenHash   string `yaml:"api_token_hash,omitempty"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms,omitempty"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms,omitempty"`
}

// LoggingConfig selects log verbosity and output format
type LoggingConfig struct {
	Debug  bool   `yaml:"debug"`
	Format string `yaml:"format"` // auto, console or json
}

// VaultConfig tunes the credential vault. The master key is never read from
// the file.
type VaultConfig struct {
	Iterations int `yaml:"iterations,omitempty"`
}

// StoreConfig holds credential store configuration
type StoreConfig struct {
	Type      string                 `yaml:"type"`
	TimeoutMs int                    `yaml:"timeout_ms,omitempty"`
	Config    map[string]interface{} `yaml:",inline"`
}

// RegistryConfig tunes the adapter registry
type RegistryConfig struct {
	HealthConcurrency int `yaml:"health_concurrency,omitempty"`
}

// HealthConfig tunes the background health monitor
type HealthConfig struct {
	IntervalSeconds  int  `yaml:"interval_seconds,omitempty"`
	FailureThreshold int  `yaml:"failure_threshold,omitempty"`
	AutoReload       bool `yaml:"auto_reload"`
	// MetricsListen runs a separate Prometheus listener when set. Otherwise
	// metrics are served by the API under /metrics.
	MetricsListen string `yaml:"metrics_listen,omitempty"`
}

// EndpointConfig overrides the built-in endpoint of one provider
type EndpointConfig struct {
	BaseURL       string  `yaml:"base_url,omitempty"`
	TokenURL      string  `yaml:"token_url,omitempty"`
	TimeoutMs     int     `yaml:"timeout_ms,omitempty"`
	RetryAttempts int     `yaml:"retry_attempts,omitempty"`
	RateLimit     float64 `yaml:"rate_limit,omitempty"`
	RateBurst     int     `yaml:"rate_burst,omitempty"`
}

// CredentialsConfig points at the plaintext credentials file. An opaque
// sealed bundle in FINLINK_CREDENTIALS takes precedence.
type CredentialsConfig struct {
	File string `yaml:"file,omitempty"`
}

// Load reads and parses the finlink.yaml file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create finlink.yaml or point " + EnvConfig + " at an existing file",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}
	return c.parse(data)
}

// LoadOptional behaves like Load but falls back to defaults when the file
// does not exist.
func (c *Config) LoadOptional() error {
	if _, err := os.Stat(c.Path); os.IsNotExist(err) {
		c.Logger.Debug("no configuration at %s, using defaults", c.Path)
		return c.parse(nil)
	}
	return c.Load()
}

func (c *Config) parse(data []byte) error {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}

	if def.Version != 0 {
		return dserrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your finlink.yaml file",
		}
	}

	def.applyDefaults()
	c.applyEnv(&def)

	if err := c.checkVault(def.Vault); err != nil {
		return err
	}

	if err := def.validate(); err != nil {
		return err
	}

	c.Definition = &def
	return nil
}

func (d *Definition) applyDefaults() {
	if d.Server.Listen == "" {
		d.Server.Listen = DefaultListen
	}
	if d.Store.Type == "" {
		d.Store.Type = DefaultStoreType
	}
	if d.Registry.HealthConcurrency <= 0 {
		d.Registry.HealthConcurrency = DefaultHealthConcurrency
	}
	if d.Health.IntervalSeconds <= 0 {
		d.Health.IntervalSeconds = int(DefaultHealthInterval / time.Second)
	}
	if d.Health.FailureThreshold <= 0 {
		d.Health.FailureThreshold = DefaultFailureThreshold
	}
	if d.Logging.Format == "" {
		d.Logging.Format = logging.FormatAuto
	}
}

func (c *Config) applyEnv(d *Definition) {
	if v := c.getenv(EnvListen); v != "" {
		d.Server.Listen = v
	}
	if v := c.getenv(EnvAPITokenHash); v != "" {
		d.Server.APITokenHash = v
	}
}

func (d *Definition) validate() error {
	for name, ep := range d.Providers {
		if _, err := connector.ParseProviderKey(name); err != nil {
			return dserrors.ConfigError{
				Field:      "providers",
				Value:      name,
				Message:    "unknown provider",
				Suggestion: fmt.Sprintf("Known providers: %v", connector.AllProviders()),
			}
		}
		for field, raw := range map[string]string{"base_url": ep.BaseURL, "token_url": ep.TokenURL} {
			if raw == "" {
				continue
			}
			u, err := url.Parse(raw)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return dserrors.ConfigError{
					Field:      fmt.Sprintf("providers.%s.%s", name, field),
					Value:      raw,
					Message:    "invalid URL",
					Suggestion: "Use an absolute URL such as https://api.example.com",
				}
			}
		}
	}
	switch d.Logging.Format {
	case logging.FormatAuto, logging.FormatConsole, logging.FormatJSON:
	default:
		return dserrors.ConfigError{
			Field:      "logging.format",
			Value:      d.Logging.Format,
			Message:    "unsupported log format",
			Suggestion: "Use auto, console or json",
		}
	}
	return nil
}

func (c *Config) checkVault(v VaultConfig) error {
	if v.Iterations == 0 {
		return nil
	}
	if v.Iterations < 0 || (v.Iterations < MinVaultIterations && !c.AllowWeakKDF) {
		return dserrors.ConfigError{
			Field:      "vault.iterations",
			Value:      v.Iterations,
			Message:    fmt.Sprintf("PBKDF2 work factor below the minimum of %d", MinVaultIterations),
			Suggestion: "Remove vault.iterations to use the default, or raise it",
		}
	}
	return nil
}

func (c *Config) getenv(key string) string {
	if c.Getenv != nil {
		return c.Getenv(key)
	}
	return os.Getenv(key)
}

// MasterKey returns the master secret from the environment.
func (c *Config) MasterKey() string {
	return c.getenv(EnvMasterKey)
}

// SealedCredentials returns the opaque bundle from the environment, if any.
func (c *Config) SealedCredentials() string {
	return c.getenv(EnvCredentials)
}

// ReadTimeout returns the HTTP server read timeout
func (s ServerConfig) ReadTimeout() time.Duration {
	if s.ReadTimeoutMs <= 0 {
		return DefaultReadTimeout
	}
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the HTTP server write timeout
func (s ServerConfig) WriteTimeout() time.Duration {
	if s.WriteTimeoutMs <= 0 {
		return DefaultWriteTimeout
	}
	return time.Duration(s.WriteTimeoutMs) * time.Millisecond
}

// Interval returns the monitor tick interval
func (h HealthConfig) Interval() time.Duration {
	if h.IntervalSeconds <= 0 {
		return DefaultHealthInterval
	}
	return time.Duration(h.IntervalSeconds) * time.Second
}

// Timeout returns the store operation timeout, defaulting to 30 seconds
func (s StoreConfig) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// String returns a config value, or def when unset. Numbers are formatted,
// so `port: 5432` reads as "5432".
func (s StoreConfig) String(key, def string) string {
	switch v := s.Config[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case int, int64, float64:
		return fmt.Sprint(v)
	}
	return def
}

// Bool returns a config flag, or false when unset.
func (s StoreConfig) Bool(key string) bool {
	v, _ := s.Config[key].(bool)
	return v
}

// Timeout returns the per-operation timeout override, or zero.
func (e EndpointConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// EndpointOverrides returns the provider overrides keyed by ProviderKey.
func (c *Config) EndpointOverrides() map[connector.ProviderKey]EndpointConfig {
	out := make(map[connector.ProviderKey]EndpointConfig)
	if c.Definition == nil {
		return out
	}
	for name, ep := range c.Definition.Providers {
		key, err := connector.ParseProviderKey(name)
		if err != nil {
			continue
		}
		out[key] = ep
	}
	return out
}
