package credstore

import (
	"context"
	"fmt"
	"time"

	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
	bolt "go.etcd.io/bbolt"
)

var credentialsBucket = []byte("credentials")

// Bolt stores records in a single bbolt file.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path. timeout bounds the wait
// for the file lock held by another process.
func OpenBolt(path string, timeout time.Duration) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, dserrors.StoreError("bolt", "open", fmt.Errorf("open %s: %w", path, err))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, dserrors.StoreError("bolt", "open", fmt.Errorf("create bucket: %w", err))
	}

	return &Bolt{db: db}, nil
}

func (b *Bolt) Put(_ context.Context, key connector.ProviderKey, rec vault.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put([]byte(key), data)
	})
}

func (b *Bolt) Get(_ context.Context, key connector.ProviderKey) (vault.Record, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(credentialsBucket).Get([]byte(key)); v != nil {
			// v is only valid inside the transaction.
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return vault.Record{}, err
	}
	if data == nil {
		return vault.Record{}, ErrNotFound
	}
	return decodeRecord(data)
}

func (b *Bolt) Delete(_ context.Context, key connector.ProviderKey) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete([]byte(key))
	})
}

func (b *Bolt) List(_ context.Context) ([]connector.ProviderKey, error) {
	var keys []connector.ProviderKey
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, connector.ProviderKey(k))
			return nil
		})
	})
	return keys, err
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
