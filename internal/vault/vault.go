// Package vault protects provider secrets at rest.
//
// A Vault derives one AES-256 key from the process master secret and keeps it
// in a memguard enclave. Every Encrypt call draws a fresh IV and salt; the
// salt feeds an HKDF step so each record is sealed under its own subkey.
// Records carry their components hex-encoded so they can be stored as JSON
// in any backend.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/internal/secure"
	"github.com/systmms/finlink/pkg/connector"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KDFSalt namespaces the master key derivation to this application.
	KDFSalt = "finlink/adapter-registry/v1"
	// DefaultIterations is the PBKDF2-HMAC-SHA256 work factor.
	DefaultIterations = 210_000

	keySize  = 32
	ivSize   = 12
	saltSize = 16
	tagSize  = 16

	hkdfInfo = "finlink/record"
)

// Record is an encrypted payload plus everything needed to open it with the
// vault key. Provider, Kind and CreatedAt are descriptive and hold no secret.
type Record struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"auth_tag"`
	Salt       string `json:"salt,omitempty"`

	Provider  connector.ProviderKey `json:"provider,omitempty"`
	Kind      connector.Kind        `json:"kind,omitempty"`
	CreatedAt time.Time             `json:"created_at,omitempty"`
}

// Vault encrypts and decrypts secrets under a key derived from the master
// secret. It is safe for concurrent use; the key never changes after New.
type Vault struct {
	key        *secure.Key
	logger     *logging.Logger
	iterations int
	now        func() time.Time
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger used for partial field-decryption failures.
func WithLogger(l *logging.Logger) Option {
	return func(v *Vault) { v.logger = l }
}

// WithIterations overrides the PBKDF2 work factor.
func WithIterations(n int) Option {
	return func(v *Vault) {
		if n > 0 {
			v.iterations = n
		}
	}
}

// New derives the vault key from masterSecret.
func New(masterSecret string, opts ...Option) (*Vault, error) {
	v := &Vault{
		logger:     logging.Nop(),
		iterations: DefaultIterations,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	derived, err := deriveKey(masterSecret, v.iterations)
	if err != nil {
		return nil, err
	}
	key, err := secure.NewKey(derived)
	if err != nil {
		return nil, fmt.Errorf("protect vault key: %w", err)
	}
	v.key = key
	return v, nil
}

// DeriveKey returns the 32-byte key for masterSecret using the default work
// factor.
func DeriveKey(masterSecret string) ([]byte, error) {
	return deriveKey(masterSecret, DefaultIterations)
}

func deriveKey(masterSecret string, iterations int) ([]byte, error) {
	if masterSecret == "" {
		return nil, ErrMissingMasterSecret
	}
	return pbkdf2.Key([]byte(masterSecret), []byte(KDFSalt), iterations, keySize, sha256.New), nil
}

// Close drops the key enclave. The vault is unusable afterwards.
func (v *Vault) Close() {
	v.key.Destroy()
}

// Encrypt seals plaintext under a fresh IV and salt.
func (v *Vault) Encrypt(plaintext []byte) (Record, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Record{}, fmt.Errorf("generate iv: %w", err)
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return Record{}, fmt.Errorf("generate salt: %w", err)
	}

	var rec Record
	err := v.withRecordKey(salt, func(key []byte) error {
		gcm, err := newGCM(key)
		if err != nil {
			return err
		}
		sealed := gcm.Seal(nil, iv, plaintext, nil)
		split := len(sealed) - tagSize
		rec = Record{
			Ciphertext: hex.EncodeToString(sealed[:split]),
			IV:         hex.EncodeToString(iv),
			AuthTag:    hex.EncodeToString(sealed[split:]),
			Salt:       hex.EncodeToString(salt),
		}
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("encrypt: %w", err)
	}
	rec.CreatedAt = v.now().UTC()
	return rec, nil
}

// Decrypt opens rec. A record without a salt is opened with the vault key
// directly.
func (v *Vault) Decrypt(rec Record) ([]byte, error) {
	ciphertext, err := hex.DecodeString(rec.Ciphertext)
	if err != nil {
		return nil, &DecryptionError{Reason: "malformed ciphertext", Err: err}
	}
	iv, err := hex.DecodeString(rec.IV)
	if err != nil || len(iv) != ivSize {
		return nil, &DecryptionError{Reason: "malformed iv", Err: err}
	}
	tag, err := hex.DecodeString(rec.AuthTag)
	if err != nil || len(tag) != tagSize {
		return nil, &DecryptionError{Reason: "malformed auth tag", Err: err}
	}
	salt, err := hex.DecodeString(rec.Salt)
	if err != nil {
		return nil, &DecryptionError{Reason: "malformed salt", Err: err}
	}

	var plaintext []byte
	err = v.withRecordKey(salt, func(key []byte) error {
		gcm, err := newGCM(key)
		if err != nil {
			return err
		}
		sealed := make([]byte, 0, len(ciphertext)+len(tag))
		sealed = append(sealed, ciphertext...)
		sealed = append(sealed, tag...)
		out, err := gcm.Open(nil, iv, sealed, nil)
		if err != nil {
			return &DecryptionError{Reason: "authentication failed", Err: err}
		}
		plaintext = out
		return nil
	})
	if err != nil {
		var derr *DecryptionError
		if errors.As(err, &derr) {
			return nil, derr
		}
		return nil, &DecryptionError{Reason: "key unavailable", Err: err}
	}
	return plaintext, nil
}

// withRecordKey hands fn the subkey for salt, or the vault key when salt is
// empty. The subkey is wiped when fn returns.
func (v *Vault) withRecordKey(salt []byte, fn func(key []byte) error) error {
	return v.key.Use(func(master []byte) error {
		if len(salt) == 0 {
			return fn(master)
		}
		sub := make([]byte, keySize)
		defer wipe(sub)
		if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(hkdfInfo)), sub); err != nil {
			return fmt.Errorf("derive record key: %w", err)
		}
		return fn(sub)
	})
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
