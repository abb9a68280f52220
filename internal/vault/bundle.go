package vault

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/systmms/finlink/pkg/connector"
)

// compactRecord is the wire form inside an opaque credentials string.
type compactRecord struct {
	C string `json:"c"`
	I string `json:"i"`
	T string `json:"t"`
	S string `json:"s,omitempty"`
}

// EncryptCredentials serializes creds, encrypts them and wraps the result in
// base64 with a compact field schema.
func (v *Vault) EncryptCredentials(creds map[string]any) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", &InvalidCredentialsError{Reason: "credentials are not serializable", Err: err}
	}
	rec, err := v.Encrypt(plain)
	if err != nil {
		return "", err
	}
	wire, err := json.Marshal(compactRecord{C: rec.Ciphertext, I: rec.IV, T: rec.AuthTag, S: rec.Salt})
	if err != nil {
		return "", fmt.Errorf("encode credentials envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wire), nil
}

// DecryptCredentials reverses EncryptCredentials. Any malformed layer or a
// failed decryption yields an InvalidCredentialsError.
func (v *Vault) DecryptCredentials(opaque string) (map[string]any, error) {
	wire, err := base64.StdEncoding.DecodeString(opaque)
	if err != nil {
		return nil, &InvalidCredentialsError{Reason: "not base64", Err: err}
	}
	var cr compactRecord
	if err := json.Unmarshal(wire, &cr); err != nil {
		return nil, &InvalidCredentialsError{Reason: "malformed envelope", Err: err}
	}
	if cr.C == "" || cr.I == "" || cr.T == "" {
		return nil, &InvalidCredentialsError{Reason: "envelope missing fields"}
	}
	plain, err := v.Decrypt(Record{Ciphertext: cr.C, IV: cr.I, AuthTag: cr.T, Salt: cr.S})
	if err != nil {
		return nil, &InvalidCredentialsError{Reason: "decryption failed", Err: err}
	}
	var creds map[string]any
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, &InvalidCredentialsError{Reason: "payload is not an object", Err: err}
	}
	return creds, nil
}

// SealCredentials validates creds for provider and encrypts them into a
// Record ready for a credential store.
func (v *Vault) SealCredentials(provider connector.ProviderKey, creds connector.RawCredentials) (Record, error) {
	if err := connector.CheckKind(provider, creds); err != nil {
		return Record{}, err
	}
	plain, err := connector.MarshalCredentials(creds)
	if err != nil {
		return Record{}, err
	}
	defer wipe(plain)

	rec, err := v.Encrypt(plain)
	if err != nil {
		return Record{}, fmt.Errorf("seal %s credentials: %w", provider, err)
	}
	rec.Provider = provider
	rec.Kind = creds.Kind()
	return rec, nil
}

// OpenCredentials decrypts a sealed record back into typed credentials.
func (v *Vault) OpenCredentials(rec Record) (connector.RawCredentials, error) {
	plain, err := v.Decrypt(rec)
	if err != nil {
		return nil, err
	}
	defer wipe(plain)

	creds, err := connector.UnmarshalCredentials(plain)
	if err != nil {
		return nil, &DecryptionError{Reason: "sealed payload is not a credentials envelope", Err: err}
	}
	if rec.Kind != "" && creds.Kind() != rec.Kind {
		return nil, &DecryptionError{Reason: fmt.Sprintf("record kind %s does not match payload kind %s", rec.Kind, creds.Kind())}
	}
	return creds, nil
}
