package connector

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		creds     RawCredentials
		wantField string
	}{
		{"oauth2 complete", OAuthClientCredentials{ClientID: "id", ClientSecret: "secret"}, ""},
		{"oauth2 missing id", OAuthClientCredentials{ClientSecret: "secret"}, "client_id"},
		{"oauth2 missing secret", OAuthClientCredentials{ClientID: "id"}, "client_secret"},
		{"certificate complete", CertificateCredentials{CertPath: "c.pem", KeyPath: "k.pem"}, ""},
		{"certificate missing key", CertificateCredentials{CertPath: "c.pem"}, "key_path"},
		{"api key complete", APIKeyCredentials{APIKey: "k", APISecret: "s"}, ""},
		{"api key missing secret", APIKeyCredentials{APIKey: "k"}, "api_secret"},
		{"basic complete", BasicCredentials{Username: "u", Password: "p"}, ""},
		{"basic missing password", BasicCredentials{Username: "u"}, "password"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.creds.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Equal(t, tt.creds.Kind(), verr.Kind)
		})
	}
}

func TestCheckKind(t *testing.T) {
	t.Parallel()

	t.Run("matching kind", func(t *testing.T) {
		t.Parallel()
		err := CheckKind(Scotia, OAuthClientCredentials{ClientID: "id", ClientSecret: "s"})
		assert.NoError(t, err)
	})

	t.Run("mismatched kind", func(t *testing.T) {
		t.Parallel()
		err := CheckKind(TD, BasicCredentials{Username: "u", Password: "p"})
		var mismatch KindMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, KindCertificate, mismatch.Want)
		assert.Equal(t, KindBasic, mismatch.Got)
	})

	t.Run("nil credentials", func(t *testing.T) {
		t.Parallel()
		err := CheckKind(BMO, nil)
		var verr ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Parallel()
		err := CheckKind(ProviderKey("chase"), BasicCredentials{Username: "u", Password: "p"})
		var unknown UnknownProviderError
		require.ErrorAs(t, err, &unknown)
	})
}

func TestMarshalCredentials_Envelope(t *testing.T) {
	t.Parallel()

	variants := []RawCredentials{
		OAuthClientCredentials{ClientID: "id", ClientSecret: "secret", TokenURL: "https://auth", Scopes: []string{"accounts"}},
		CertificateCredentials{CertPath: "/etc/c.pem", KeyPath: "/etc/k.pem", Passphrase: "pw", CAPath: "/etc/ca.pem"},
		APIKeyCredentials{APIKey: "key", APISecret: "secret"},
		BasicCredentials{Username: "user", Password: "pass"},
	}

	for _, creds := range variants {
		creds := creds
		t.Run(string(creds.Kind()), func(t *testing.T) {
			t.Parallel()

			data, err := MarshalCredentials(creds)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"kind":"`+string(creds.Kind())+`"`)

			decoded, err := UnmarshalCredentials(data)
			require.NoError(t, err)
			assert.Equal(t, creds, decoded)
		})
	}
}

func TestUnmarshalCredentials_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := UnmarshalCredentials([]byte(`{"kind":"kerberos","data":{}}`))
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "kind", verr.Field)

	_, err = UnmarshalCredentials([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeCredentials_FromMap(t *testing.T) {
	t.Parallel()

	creds, err := DecodeCredentials(KindOAuth2, map[string]any{
		"client_id":     "abc",
		"client_secret": "xyz",
		"scopes":        []any{"read", "write"},
	})
	require.NoError(t, err)

	oauth, ok := creds.(OAuthClientCredentials)
	require.True(t, ok)
	assert.Equal(t, "abc", oauth.ClientID)
	assert.Equal(t, []string{"read", "write"}, oauth.Scopes)
}

func TestCredentials_StringRedacts(t *testing.T) {
	t.Parallel()

	variants := []RawCredentials{
		OAuthClientCredentials{ClientID: "id", ClientSecret: "hunter2-oauth"},
		CertificateCredentials{CertPath: "c", KeyPath: "k", Passphrase: "hunter2-cert"},
		APIKeyCredentials{APIKey: "hunter2-key", APISecret: "hunter2-apisecret"},
		BasicCredentials{Username: "u", Password: "hunter2-basic"},
	}

	for _, creds := range variants {
		for _, verb := range []string{"%v", "%+v", "%#v", "%s"} {
			out := fmt.Sprintf(verb, creds)
			assert.NotContains(t, out, "hunter2", "verb %s leaked a secret: %s", verb, out)
		}
	}
}
