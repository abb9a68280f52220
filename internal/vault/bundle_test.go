package vault

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/finlink/pkg/connector"
)

func TestEncryptCredentials_RoundTrip(t *testing.T) {
	t.Parallel()

	v := newTestVault(t, "bundle-master")
	creds := map[string]any{
		"scotia": map[string]any{"kind": "oauth2", "client_id": "abc", "client_secret": "xyz"},
		"bmo":    map[string]any{"kind": "api_key", "api_key": "k", "api_secret": "s"},
	}

	opaque, err := v.EncryptCredentials(creds)
	require.NoError(t, err)
	assert.NotContains(t, opaque, "xyz")

	raw, err := base64.StdEncoding.DecodeString(opaque)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"c":`)
	assert.Contains(t, string(raw), `"i":`)
	assert.Contains(t, string(raw), `"t":`)
	assert.Contains(t, string(raw), `"s":`)

	got, err := v.DecryptCredentials(opaque)
	require.NoError(t, err)
	assert.Equal(t, creds, got)
}

func TestDecryptCredentials_Invalid(t *testing.T) {
	t.Parallel()

	v := newTestVault(t, "bundle-master")
	other := newTestVault(t, "other-master")

	foreign, err := other.EncryptCredentials(map[string]any{"a": "b"})
	require.NoError(t, err)

	notObject, err := v.Encrypt([]byte(`["array"]`))
	require.NoError(t, err)
	wire := `{"c":"` + notObject.Ciphertext + `","i":"` + notObject.IV + `","t":"` + notObject.AuthTag + `","s":"` + notObject.Salt + `"}`

	tests := []struct {
		name   string
		opaque string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"not json", base64.StdEncoding.EncodeToString([]byte("plain text"))},
		{"missing fields", base64.StdEncoding.EncodeToString([]byte(`{"c":"00"}`))},
		{"wrong key", foreign},
		{"payload not an object", base64.StdEncoding.EncodeToString([]byte(wire))},
		{"empty", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := v.DecryptCredentials(tt.opaque)
			var invalid *InvalidCredentialsError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestSealOpenCredentials(t *testing.T) {
	t.Parallel()

	v := newTestVault(t, "seal-master")

	tests := []struct {
		provider connector.ProviderKey
		creds    connector.RawCredentials
	}{
		{connector.Scotia, connector.OAuthClientCredentials{ClientID: "id", ClientSecret: "secret", Scopes: []string{"accounts"}}},
		{connector.TD, connector.CertificateCredentials{CertPath: "/c.pem", KeyPath: "/k.pem", Passphrase: "pw"}},
		{connector.BMO, connector.APIKeyCredentials{APIKey: "k", APISecret: "s"}},
		{connector.Desjardins, connector.BasicCredentials{Username: "u", Password: "p"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.provider), func(t *testing.T) {
			t.Parallel()

			rec, err := v.SealCredentials(tt.provider, tt.creds)
			require.NoError(t, err)
			assert.Equal(t, tt.provider, rec.Provider)
			assert.Equal(t, tt.creds.Kind(), rec.Kind)

			got, err := v.OpenCredentials(rec)
			require.NoError(t, err)
			assert.Equal(t, tt.creds, got)
		})
	}
}

func TestSealCredentials_RejectsWrongKind(t *testing.T) {
	t.Parallel()

	v := newTestVault(t, "seal-master")
	_, err := v.SealCredentials(connector.TD, connector.BasicCredentials{Username: "u", Password: "p"})
	var mismatch connector.KindMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestOpenCredentials_KindMismatch(t *testing.T) {
	t.Parallel()

	v := newTestVault(t, "seal-master")
	rec, err := v.SealCredentials(connector.BMO, connector.APIKeyCredentials{APIKey: "k", APISecret: "s"})
	require.NoError(t, err)
	rec.Kind = connector.KindBasic

	_, err = v.OpenCredentials(rec)
	var derr *DecryptionError
	assert.ErrorAs(t, err, &derr)
}
