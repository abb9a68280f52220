package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/finlink/internal/config"
	"github.com/systmms/finlink/internal/credstore"
	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
)

const testMasterKey = "commands-test-master-key"

const testCredentials = `
desjardins:
  username: branch-ops
  password: hunter2
national:
  api_key: nk
  api_secret: ns
`

func newTestConfig(t *testing.T, configYAML string, env map[string]string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "finlink.yaml")
	if configYAML != "" {
		configYAML = strings.ReplaceAll(configYAML, "$DIR", dir)
		require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))
	}

	return &config.Config{
		Path:         path,
		Logger:       logging.Nop(),
		Getenv:       func(k string) string { return env[k] },
		AllowWeakKDF: true,
	}
}

func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestProvidersCommand(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, `
providers:
  bmo:
    base_url: https://sandbox.bmo.example
    retry_attempts: 7
`, nil)

	out, err := execute(t, NewProvidersCommand(cfg), "")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2+len(connector.AllProviders()))
	assert.Contains(t, lines[0], "PROVIDER")

	assert.Regexp(t, `scotia\s+oauth2\s+implemented`, out)
	assert.Regexp(t, `rbc\s+certificate\s+pending`, out)
	assert.Regexp(t, `bmo\s+api_key\s+implemented\s+https://sandbox.bmo.example`, out)

	verbose, err := execute(t, NewProvidersCommand(cfg), "", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, verbose, "RETRIES")
	assert.Regexp(t, `bmo\s+.*\s+7\n`, verbose)
}

func TestTokenCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, NewTokenCommand(newTestConfig(t, "", nil)), "", "--bytes", "16")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	token := strings.TrimSpace(strings.TrimPrefix(lines[0], "token:"))
	hash := strings.TrimSpace(strings.TrimPrefix(lines[1], "hash:"))

	assert.Len(t, token, 32)
	assert.True(t, vault.CompareHash([]byte(token), hash))
}

func TestHashTokenCommand(t *testing.T) {
	t.Parallel()

	want := vault.Hash([]byte("s3cret-token"))

	tests := []struct {
		name    string
		stdin   string
		args    []string
		wantErr bool
	}{
		{name: "argument", args: []string{"s3cret-token"}},
		{name: "stdin", stdin: "s3cret-token\n"},
		{name: "stdin without newline", stdin: "s3cret-token"},
		{name: "empty stdin", stdin: "", wantErr: true},
		{name: "blank argument", args: []string{"   "}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := execute(t, NewHashTokenCommand(newTestConfig(t, "", nil)), tt.stdin, tt.args...)
			if tt.wantErr {
				var userErr dserrors.UserError
				assert.ErrorAs(t, err, &userErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, want, strings.TrimSpace(out))
		})
	}
}

func TestSealCommand(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, `
vault:
  iterations: 1000
credentials:
  file: $DIR/credentials.yaml
`, map[string]string{config.EnvMasterKey: testMasterKey})
	credsPath := filepath.Join(filepath.Dir(cfg.Path), "credentials.yaml")
	require.NoError(t, os.WriteFile(credsPath, []byte(testCredentials), 0o600))

	out, err := execute(t, NewSealCommand(cfg), "")
	require.NoError(t, err)
	opaque := strings.TrimSpace(out)
	assert.NotContains(t, opaque, "hunter2")

	v, err := vault.New(testMasterKey, vault.WithIterations(1000))
	require.NoError(t, err)
	t.Cleanup(v.Close)

	doc, err := v.DecryptCredentials(opaque)
	require.NoError(t, err)
	bundle, err := config.ParseBundle(doc)
	require.NoError(t, err)

	want, err := config.LoadCredentialsFile(credsPath)
	require.NoError(t, err)
	assert.Equal(t, want, bundle)
}

func TestSealCommand_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing master key", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "", nil)
		credsPath := filepath.Join(filepath.Dir(cfg.Path), "credentials.yaml")
		require.NoError(t, os.WriteFile(credsPath, []byte(testCredentials), 0o600))

		_, err := execute(t, NewSealCommand(cfg), "", "--file", credsPath)
		var userErr dserrors.UserError
		require.ErrorAs(t, err, &userErr)
		assert.ErrorIs(t, err, vault.ErrMissingMasterSecret)
	})

	t.Run("no file", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig(t, "", map[string]string{config.EnvMasterKey: testMasterKey})
		_, err := execute(t, NewSealCommand(cfg), "")
		var userErr dserrors.UserError
		require.ErrorAs(t, err, &userErr)
		assert.Equal(t, "No credentials file given", userErr.Message)
	})
}

func TestStoreCommand(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, `
store:
  type: bolt
  path: $DIR/creds.db
`, nil)
	dbPath := filepath.Join(filepath.Dir(cfg.Path), "creds.db")

	seed, err := credstore.OpenBolt(dbPath, time.Second)
	require.NoError(t, err)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, seed.Put(context.Background(), connector.BMO, vault.Record{
		Ciphertext: "aa", IV: "bb", AuthTag: "cc", Provider: connector.BMO, Kind: connector.KindAPIKey, CreatedAt: created,
	}))
	require.NoError(t, seed.Put(context.Background(), connector.TD, vault.Record{
		Ciphertext: "dd", IV: "ee", AuthTag: "ff", Provider: connector.TD, Kind: connector.KindCertificate,
	}))
	require.NoError(t, seed.Close())

	out, err := execute(t, NewStoreCommand(cfg), "", "list")
	require.NoError(t, err)
	assert.Regexp(t, `bmo\s+api_key\s+2026-03-01T12:00:00Z`, out)
	assert.Regexp(t, `td\s+certificate\s+-`, out)

	_, err = execute(t, NewStoreCommand(cfg), "", "delete", "BMO")
	require.NoError(t, err)

	out, err = execute(t, NewStoreCommand(cfg), "", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "bmo")
	assert.Contains(t, out, "td")

	_, err = execute(t, NewStoreCommand(cfg), "", "delete", "chase")
	var unknown connector.UnknownProviderError
	assert.ErrorAs(t, err, &unknown)
}

func TestServeCommand(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, `
server:
  listen: 127.0.0.1:0
vault:
  iterations: 1000
credentials:
  file: credentials.yaml
`, map[string]string{config.EnvMasterKey: testMasterKey})
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(cfg.Path), "credentials.yaml"), []byte(testCredentials), 0o600))

	cmd := NewServeCommand(cfg)
	cmd.SetArgs(nil)
	cmd.SetOut(&bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	// Only pending providers are credentialed, so nothing dials out.
	require.NoError(t, cmd.ExecuteContext(ctx))
}

func TestServeCommand_MissingMasterKey(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, "server:\n  listen: 127.0.0.1:0\n", nil)
	cmd := NewServeCommand(cfg)
	cmd.SetArgs(nil)
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	var userErr dserrors.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "Master key not configured", userErr.Message)
}

func TestSealCommand_RejectsWeakKDF(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, "vault:\n  iterations: 1\n", map[string]string{config.EnvMasterKey: testMasterKey})
	cfg.AllowWeakKDF = false

	_, err := execute(t, NewSealCommand(cfg), "", "--file", "unused.yaml")
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "vault.iterations", cfgErr.Field)
}

func TestConfiguredLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		noColor   bool
		debug     bool
		wantColor bool
		wantDebug bool
	}{
		{name: "color by default", wantColor: true},
		{name: "no-color flag kept", noColor: true},
		{name: "debug flag kept", noColor: true, debug: true, wantDebug: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			cfg := newTestConfig(t, "logging:\n  format: console\n", nil)
			cfg.NoColor = tt.noColor
			cfg.Debug = tt.debug
			cfg.LogOutput = &out
			require.NoError(t, cfg.LoadOptional())

			logger := configuredLogger(cfg)
			logger.Info("adapter registry initialized")
			logger.Debug("debug detail")

			assert.Contains(t, out.String(), "adapter registry initialized")
			assert.Equal(t, tt.wantColor, strings.Contains(out.String(), "\x1b["))
			assert.Equal(t, tt.wantDebug, strings.Contains(out.String(), "debug detail"))
		})
	}
}
