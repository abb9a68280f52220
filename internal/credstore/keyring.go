package credstore

import (
	"context"
	"errors"

	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
	"github.com/zalando/go-keyring"
)

// KeyringService is the default service name under which records are kept.
const KeyringService = "finlink"

// Keyring stores records in the OS keychain, one item per provider.
type Keyring struct {
	service string
}

// NewKeyring returns a keyring store using service as the item service name.
func NewKeyring(service string) *Keyring {
	if service == "" {
		service = KeyringService
	}
	return &Keyring{service: service}
}

func (k *Keyring) Put(_ context.Context, key connector.ProviderKey, rec vault.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := keyring.Set(k.service, string(key), string(data)); err != nil {
		return dserrors.StoreError("keyring", "put", err)
	}
	return nil
}

func (k *Keyring) Get(_ context.Context, key connector.ProviderKey) (vault.Record, error) {
	data, err := keyring.Get(k.service, string(key))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return vault.Record{}, ErrNotFound
		}
		return vault.Record{}, dserrors.StoreError("keyring", "get", err)
	}
	return decodeRecord([]byte(data))
}

func (k *Keyring) Delete(_ context.Context, key connector.ProviderKey) error {
	err := keyring.Delete(k.service, string(key))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return dserrors.StoreError("keyring", "delete", err)
	}
	return nil
}

// List probes every known provider; keychains offer no portable enumeration.
func (k *Keyring) List(_ context.Context) ([]connector.ProviderKey, error) {
	var keys []connector.ProviderKey
	for _, key := range connector.AllProviders() {
		_, err := keyring.Get(k.service, string(key))
		switch {
		case err == nil:
			keys = append(keys, key)
		case errors.Is(err, keyring.ErrNotFound):
		default:
			return nil, dserrors.StoreError("keyring", "list", err)
		}
	}
	return keys, nil
}

func (k *Keyring) Close() error { return nil }
