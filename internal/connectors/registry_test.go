package connectors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/finlink/internal/config"
	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/pkg/connector"
)

func TestNewRegistry_Variants(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.Equal(t, []connector.ProviderKey{connector.BMO, connector.Scotia, connector.TD}, r.Implemented())

	tests := []struct {
		key         connector.ProviderKey
		implemented bool
	}{
		{connector.Scotia, true},
		{connector.TD, true},
		{connector.BMO, true},
		{connector.RBC, false},
		{connector.CIBC, false},
		{connector.Desjardins, false},
		{connector.National, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.key), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.implemented, r.IsImplemented(tt.key))
		})
	}
}

func TestRegistry_CreatePending(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, key := range []connector.ProviderKey{connector.RBC, connector.CIBC, connector.Desjardins, connector.National} {
		conn, err := r.Create(key, nil, logging.Nop())
		assert.Nil(t, conn)
		require.ErrorIs(t, err, connector.ErrNotImplemented)

		var notImpl connector.NotImplementedError
		require.ErrorAs(t, err, &notImpl)
		assert.Equal(t, key, notImpl.Provider)
	}
}

func TestRegistry_CreateChecksKind(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Create(connector.Scotia, connector.BasicCredentials{Username: "u", Password: "p"}, logging.Nop())
	var mismatch connector.KindMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, connector.KindOAuth2, mismatch.Want)

	_, err = r.Create(connector.ProviderKey("chase"), nil, logging.Nop())
	var unknown connector.UnknownProviderError
	assert.ErrorAs(t, err, &unknown)
}

func TestRegistry_CreateBuildsVariant(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	conn, err := r.Create(connector.BMO, connector.APIKeyCredentials{APIKey: "k", APISecret: "s"}, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &BMO{}, conn)
	assert.Equal(t, connector.BMO, conn.Provider())
	assert.Equal(t, connector.StateUninitialized, conn.State())

	conn, err = r.Create(connector.TD, connector.CertificateCredentials{CertPath: "c", KeyPath: "k"}, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &TD{}, conn)
}

func TestRegistry_RegisterFactoryOverridesPending(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	sentinel := errors.New("built")
	r.RegisterFactory(connector.RBC, func(ep Endpoint, _ connector.RawCredentials, _ *logging.Logger) (connector.Connector, error) {
		assert.Equal(t, connector.RBC, ep.Provider)
		return nil, sentinel
	})

	assert.True(t, r.IsImplemented(connector.RBC))
	_, err := r.Create(connector.RBC, connector.CertificateCredentials{CertPath: "c", KeyPath: "k"}, logging.Nop())
	assert.ErrorIs(t, err, sentinel)
}

func TestEndpoint_DefaultsAndOverrides(t *testing.T) {
	t.Parallel()

	ep := DefaultEndpoint(connector.TD)
	assert.Equal(t, DefaultTimeout, ep.Timeout)
	assert.Equal(t, DefaultRetryAttempts, ep.RetryAttempts)
	assert.Equal(t, connector.KindCertificate, ep.Auth)
	assert.Equal(t, "https://api.td.com", ep.BaseURL)

	r := NewRegistry()
	r.ApplyOverrides(map[connector.ProviderKey]config.EndpointConfig{
		connector.Scotia: {BaseURL: "https://sandbox.example", TimeoutMs: 2500, RetryAttempts: 1, RateLimit: 2},
	})

	scotia := r.Endpoint(connector.Scotia)
	assert.Equal(t, "https://sandbox.example", scotia.BaseURL)
	assert.Equal(t, 2500*time.Millisecond, scotia.Timeout)
	assert.Equal(t, 1, scotia.RetryAttempts)
	assert.Equal(t, 2.0, scotia.RateLimit)
	assert.Equal(t, DefaultRateBurst, scotia.RateBurst)
	assert.NotEmpty(t, scotia.TokenURL, "token URL keeps its default")
}
