package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

var (
	// ErrEmptyKey is returned when key material is empty.
	ErrEmptyKey = errors.New("secure: empty key material")

	// ErrKeyDestroyed is returned when a destroyed key is used.
	ErrKeyDestroyed = errors.New("secure: key destroyed")
)

// Key holds symmetric key material inside a memguard enclave.
//
// The plaintext key exists only for the duration of a Use callback, inside a
// locked buffer that is wiped when the callback returns. A Key is immutable
// after construction and safe for concurrent use.
type Key struct {
	enclave *memguard.Enclave
	size    int
	mu      sync.RWMutex
	// destroyed makes Destroy idempotent and blocks use afterwards.
	destroyed bool
}

// NewKey seals material into an enclave.
//
// memguard wipes the source slice; callers must not rely on its contents
// after this call.
func NewKey(material []byte) (*Key, error) {
	if len(material) == 0 {
		return nil, ErrEmptyKey
	}
	size := len(material)
	enclave := memguard.NewEnclave(material)
	if enclave == nil {
		return nil, ErrEmptyKey
	}
	return &Key{enclave: enclave, size: size}, nil
}

// Size returns the key length in bytes.
func (k *Key) Size() int {
	return k.size
}

// Use opens the enclave and passes the plaintext key to fn.
//
// The slice is only valid inside fn. It is wiped as soon as fn returns, so
// fn must not retain it or hand it to a goroutine.
//
// Example:
//
//	err := key.Use(func(raw []byte) error {
//	    block, err := aes.NewCipher(raw)
//	    ...
//	})
func (k *Key) Use(fn func(key []byte) error) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.destroyed {
		return ErrKeyDestroyed
	}

	locked, err := k.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.Bytes())
}

// Destroy drops the enclave. It is idempotent. For a full wipe of all
// memguard state at process exit, call memguard.Purge in main.
func (k *Key) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.destroyed {
		return
	}
	k.enclave = nil
	k.destroyed = true
}
