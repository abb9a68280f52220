package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/pkg/connector"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func envFrom(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestConfig_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "finlink.yaml", `
version: 0
server:
  listen: ":9090"
  read_timeout_ms: 2000
logging:
  format: json
store:
  type: bolt
  path: /var/lib/finlink/creds.db
  timeout_ms: 1500
health:
  interval_seconds: 10
  auto_reload: true
  metrics_listen: ":9100"
providers:
  scotia:
    base_url: https://sandbox.scotia.example
    token_url: https://auth.scotia.example/token
    retry_attempts: 5
`)

	cfg := &Config{Path: path, Logger: logging.Nop(), Getenv: envFrom(nil)}
	require.NoError(t, cfg.Load())

	def := cfg.Definition
	assert.Equal(t, ":9090", def.Server.Listen)
	assert.Equal(t, 2*time.Second, def.Server.ReadTimeout())
	assert.Equal(t, DefaultWriteTimeout, def.Server.WriteTimeout())
	assert.Equal(t, "json", def.Logging.Format)
	assert.Equal(t, "bolt", def.Store.Type)
	assert.Equal(t, "/var/lib/finlink/creds.db", def.Store.String("path", ""))
	assert.Equal(t, 1500*time.Millisecond, def.Store.Timeout())
	assert.Equal(t, 10*time.Second, def.Health.Interval())
	assert.Equal(t, DefaultFailureThreshold, def.Health.FailureThreshold)
	assert.True(t, def.Health.AutoReload)
	assert.Equal(t, ":9100", def.Health.MetricsListen)
	assert.Equal(t, DefaultHealthConcurrency, def.Registry.HealthConcurrency)

	overrides := cfg.EndpointOverrides()
	require.Contains(t, overrides, connector.Scotia)
	assert.Equal(t, 5, overrides[connector.Scotia].RetryAttempts)
}

func TestConfig_LoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"invalid yaml", "server: [unclosed", ""},
		{"unsupported version", "version: 2", "version"},
		{"unknown provider", "providers:\n  chase:\n    base_url: https://x.example", "providers"},
		{"relative url", "providers:\n  td:\n    base_url: /v1", "providers.td.base_url"},
		{"bad log format", "logging:\n  format: xml", "logging.format"},
		{"weak kdf", "vault:\n  iterations: 1", "vault.iterations"},
		{"negative kdf", "vault:\n  iterations: -5", "vault.iterations"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeFile(t, t.TempDir(), "finlink.yaml", tt.content)
			cfg := &Config{Path: path, Logger: logging.Nop(), Getenv: envFrom(nil)}

			err := cfg.Load()
			var cfgErr dserrors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Nil(t, cfg.Definition)
		})
	}
}

func TestConfig_LoadMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent.yaml")

	strict := &Config{Path: path, Logger: logging.Nop(), Getenv: envFrom(nil)}
	err := strict.Load()
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "configuration file not found", cfgErr.Message)

	optional := &Config{Path: path, Logger: logging.Nop(), Getenv: envFrom(nil)}
	require.NoError(t, optional.LoadOptional())
	assert.Equal(t, DefaultListen, optional.Definition.Server.Listen)
	assert.Equal(t, DefaultStoreType, optional.Definition.Store.Type)
	assert.Equal(t, DefaultHealthInterval, optional.Definition.Health.Interval())
	assert.Equal(t, 30*time.Second, optional.Definition.Store.Timeout())
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Parallel()

	path := writeFile(t, t.TempDir(), "finlink.yaml", "server:\n  listen: \":9090\"\n")
	cfg := &Config{
		Path:   path,
		Logger: logging.Nop(),
		Getenv: envFrom(map[string]string{
			EnvListen:       "127.0.0.1:7000",
			EnvAPITokenHash: "abc123",
			EnvMasterKey:    "master",
			EnvCredentials:  "sealed",
		}),
	}
	require.NoError(t, cfg.Load())

	assert.Equal(t, "127.0.0.1:7000", cfg.Definition.Server.Listen)
	assert.Equal(t, "abc123", cfg.Definition.Server.APITokenHash)
	assert.Equal(t, "master", cfg.MasterKey())
	assert.Equal(t, "sealed", cfg.SealedCredentials())
}

func TestStoreConfig_Accessors(t *testing.T) {
	t.Parallel()

	sc := StoreConfig{Type: "sql", Config: map[string]interface{}{
		"driver":       "postgres",
		"create_table": true,
		"port":         5432,
	}}

	assert.Equal(t, "postgres", sc.String("driver", "mysql"))
	assert.Equal(t, "credential_records", sc.String("table", "credential_records"))
	assert.Equal(t, "5432", sc.String("port", "default"))
	assert.Equal(t, "default", sc.String("create_table", "default"))
	assert.True(t, sc.Bool("create_table"))
	assert.False(t, sc.Bool("missing"))
}

func TestEndpointOverrides_NoDefinition(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Empty(t, cfg.EndpointOverrides())
}

func TestConfig_VaultIterations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		content   string
		allowWeak bool
		want      int
		wantErr   bool
	}{
		{name: "unset uses vault default", content: "version: 0", want: 0},
		{name: "at the floor", content: "vault:\n  iterations: 100000", want: MinVaultIterations},
		{name: "below the floor", content: "vault:\n  iterations: 99999", wantErr: true},
		{name: "weak allowed for tests", content: "vault:\n  iterations: 1000", allowWeak: true, want: 1000},
		{name: "negative never allowed", content: "vault:\n  iterations: -1", allowWeak: true, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeFile(t, t.TempDir(), "finlink.yaml", tt.content)
			cfg := &Config{Path: path, Logger: logging.Nop(), Getenv: envFrom(nil), AllowWeakKDF: tt.allowWeak}

			err := cfg.Load()
			if tt.wantErr {
				var cfgErr dserrors.ConfigError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, "vault.iterations", cfgErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Definition.Vault.Iterations)
		})
	}
}
