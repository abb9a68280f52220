package connector

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind names a credential shape.
type Kind string

const (
	KindOAuth2      Kind = "oauth2"
	KindCertificate Kind = "certificate"
	KindAPIKey      Kind = "api_key"
	KindBasic       Kind = "basic"
)

// expectedKinds records the credential shape each institution accepts.
var expectedKinds = map[ProviderKey]Kind{
	Scotia:     KindOAuth2,
	TD:         KindCertificate,
	BMO:        KindAPIKey,
	RBC:        KindCertificate,
	CIBC:       KindOAuth2,
	Desjardins: KindBasic,
	National:   KindAPIKey,
}

// ExpectedKind returns the credential kind a provider accepts.
func ExpectedKind(key ProviderKey) (Kind, bool) {
	k, ok := expectedKinds[key]
	return k, ok
}

// RawCredentials is a provider secret in its plaintext, structured form.
//
// The interface is sealed: the only implementations are the variants in this
// file. Values must never be written to durable storage; seal them with the
// credential vault first.
type RawCredentials interface {
	// Kind returns the credential shape.
	Kind() Kind

	// Validate checks that required fields are present.
	Validate() error

	sealed()
}

// OAuthClientCredentials holds an OAuth2 client-credentials grant.
type OAuthClientCredentials struct {
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"client_secret" yaml:"client_secret"`
	TokenURL     string   `json:"token_url,omitempty" yaml:"token_url,omitempty"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

func (OAuthClientCredentials) Kind() Kind { return KindOAuth2 }
func (OAuthClientCredentials) sealed()    {}

func (c OAuthClientCredentials) Validate() error {
	if c.ClientID == "" {
		return ValidationError{Kind: KindOAuth2, Field: "client_id", Message: "is required"}
	}
	if c.ClientSecret == "" {
		return ValidationError{Kind: KindOAuth2, Field: "client_secret", Message: "is required"}
	}
	return nil
}

// String keeps the secret out of logs.
func (c OAuthClientCredentials) String() string {
	return fmt.Sprintf("oauth2{client_id=%s client_secret=[REDACTED]}", c.ClientID)
}

// GoString implements fmt.GoStringer for %#v.
func (c OAuthClientCredentials) GoString() string { return c.String() }

// CertificateCredentials points at a client certificate used for mutual TLS.
type CertificateCredentials struct {
	CertPath   string `json:"cert_path" yaml:"cert_path"`
	KeyPath    string `json:"key_path" yaml:"key_path"`
	Passphrase string `json:"passphrase,omitempty" yaml:"passphrase,omitempty"`
	CAPath     string `json:"ca_path,omitempty" yaml:"ca_path,omitempty"`
}

func (CertificateCredentials) Kind() Kind { return KindCertificate }
func (CertificateCredentials) sealed()    {}

func (c CertificateCredentials) Validate() error {
	if c.CertPath == "" {
		return ValidationError{Kind: KindCertificate, Field: "cert_path", Message: "is required"}
	}
	if c.KeyPath == "" {
		return ValidationError{Kind: KindCertificate, Field: "key_path", Message: "is required"}
	}
	return nil
}

func (c CertificateCredentials) String() string {
	return fmt.Sprintf("certificate{cert_path=%s key_path=%s passphrase=[REDACTED]}", c.CertPath, c.KeyPath)
}

func (c CertificateCredentials) GoString() string { return c.String() }

// APIKeyCredentials holds an API key and the secret used to sign requests.
type APIKeyCredentials struct {
	APIKey    string `json:"api_key" yaml:"api_key"`
	APISecret string `json:"api_secret" yaml:"api_secret"`
}

func (APIKeyCredentials) Kind() Kind { return KindAPIKey }
func (APIKeyCredentials) sealed()    {}

func (c APIKeyCredentials) Validate() error {
	if c.APIKey == "" {
		return ValidationError{Kind: KindAPIKey, Field: "api_key", Message: "is required"}
	}
	if c.APISecret == "" {
		return ValidationError{Kind: KindAPIKey, Field: "api_secret", Message: "is required"}
	}
	return nil
}

func (c APIKeyCredentials) String() string {
	return "api_key{api_key=[REDACTED] api_secret=[REDACTED]}"
}

func (c APIKeyCredentials) GoString() string { return c.String() }

// BasicCredentials holds a username and password.
type BasicCredentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

func (BasicCredentials) Kind() Kind { return KindBasic }
func (BasicCredentials) sealed()    {}

func (c BasicCredentials) Validate() error {
	if c.Username == "" {
		return ValidationError{Kind: KindBasic, Field: "username", Message: "is required"}
	}
	if c.Password == "" {
		return ValidationError{Kind: KindBasic, Field: "password", Message: "is required"}
	}
	return nil
}

func (c BasicCredentials) String() string {
	return fmt.Sprintf("basic{username=%s password=[REDACTED]}", c.Username)
}

func (c BasicCredentials) GoString() string { return c.String() }

// CheckKind verifies that creds are valid and of the shape key expects.
func CheckKind(key ProviderKey, creds RawCredentials) error {
	if creds == nil {
		return ValidationError{Field: "credentials", Message: fmt.Sprintf("missing for %s", key)}
	}
	want, ok := ExpectedKind(key)
	if !ok {
		return UnknownProviderError{Name: string(key)}
	}
	if creds.Kind() != want {
		return KindMismatchError{Provider: key, Want: want, Got: creds.Kind()}
	}
	return creds.Validate()
}

// envelope is the serialized form handed to the vault for sealing.
type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalCredentials encodes creds as {"kind": ..., "data": {...}}.
func MarshalCredentials(creds RawCredentials) ([]byte, error) {
	if creds == nil {
		return nil, fmt.Errorf("marshal credentials: nil value")
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("marshal %s credentials: %w", creds.Kind(), err)
	}
	return json.Marshal(envelope{Kind: creds.Kind(), Data: data})
}

// UnmarshalCredentials decodes the output of MarshalCredentials.
func UnmarshalCredentials(b []byte) (RawCredentials, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("unmarshal credentials envelope: %w", err)
	}
	return decodeKind(env.Kind, env.Data)
}

// DecodeCredentials builds a typed variant from a loosely typed map, as read
// from a YAML or JSON credentials file.
func DecodeCredentials(kind Kind, fields map[string]any) (RawCredentials, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s fields: %w", kind, err)
	}
	return decodeKind(kind, data)
}

func decodeKind(kind Kind, data []byte) (RawCredentials, error) {
	var (
		creds RawCredentials
		err   error
	)
	switch Kind(strings.ToLower(string(kind))) {
	case KindOAuth2:
		var c OAuthClientCredentials
		err = json.Unmarshal(data, &c)
		creds = c
	case KindCertificate:
		var c CertificateCredentials
		err = json.Unmarshal(data, &c)
		creds = c
	case KindAPIKey:
		var c APIKeyCredentials
		err = json.Unmarshal(data, &c)
		creds = c
	case KindBasic:
		var c BasicCredentials
		err = json.Unmarshal(data, &c)
		creds = c
	default:
		return nil, ValidationError{Field: "kind", Message: fmt.Sprintf("unsupported credential kind %q", kind)}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s credentials: %w", kind, err)
	}
	return creds, nil
}
