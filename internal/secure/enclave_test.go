package secure

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "32 byte key", data: bytes.Repeat([]byte{0x42}, 32)},
		{name: "binary data", data: []byte{0x00, 0xFF, 0x10, 0x20}},
		{name: "empty material", data: []byte{}, wantErr: ErrEmptyKey},
		{name: "nil material", data: nil, wantErr: ErrEmptyKey},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			size := len(tt.data)
			key, err := NewKey(tt.data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, key)
				return
			}
			require.NoError(t, err)
			defer key.Destroy()
			assert.Equal(t, size, key.Size())
		})
	}
}

func TestKey_Use(t *testing.T) {
	t.Parallel()

	// memguard wipes the source slice, keep a separate copy for comparison
	expected := []byte("0123456789abcdef0123456789abcdef")
	key, err := NewKey([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	defer key.Destroy()

	for i := 0; i < 3; i++ {
		err := key.Use(func(raw []byte) error {
			assert.Equal(t, expected, raw)
			return nil
		})
		require.NoError(t, err)
	}
}

func TestKey_UsePropagatesError(t *testing.T) {
	t.Parallel()

	key, err := NewKey([]byte("some-key-material"))
	require.NoError(t, err)
	defer key.Destroy()

	boom := errors.New("boom")
	err = key.Use(func([]byte) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestKey_Destroy(t *testing.T) {
	t.Parallel()

	key, err := NewKey([]byte("secret-to-destroy"))
	require.NoError(t, err)

	key.Destroy()
	// idempotent
	key.Destroy()

	called := false
	err = key.Use(func([]byte) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrKeyDestroyed)
	assert.False(t, called)
}

func TestKey_ConcurrentUse(t *testing.T) {
	t.Parallel()

	expected := []byte("concurrent-secret")
	key, err := NewKey([]byte("concurrent-secret"))
	require.NoError(t, err)
	defer key.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := key.Use(func(raw []byte) error {
				if !bytes.Equal(raw, expected) {
					return errors.New("data mismatch in concurrent access")
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func BenchmarkKey_Use(b *testing.B) {
	key, _ := NewKey(bytes.Repeat([]byte{1}, 32))
	defer key.Destroy()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = key.Use(func([]byte) error { return nil })
	}
}
