package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/systmms/finlink/internal/config"
	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
)

// ErrNotFound is returned by Get when no record exists for a provider.
var ErrNotFound = errors.New("credential record not found")

// DefaultPrefix namespaces secret names in shared cloud stores.
const DefaultPrefix = "finlink"

// Store persists sealed credential records keyed by provider.
type Store interface {
	// Put creates or replaces the record for key.
	Put(ctx context.Context, key connector.ProviderKey, rec vault.Record) error

	// Get returns ErrNotFound when nothing is stored for key.
	Get(ctx context.Context, key connector.ProviderKey) (vault.Record, error)

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, key connector.ProviderKey) error

	// List returns the providers that have a stored record, sorted.
	List(ctx context.Context) ([]connector.ProviderKey, error)

	Close() error
}

// Open creates the store described by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemory(), nil
	case "bolt":
		return OpenBolt(cfg.String("path", "finlink-credentials.db"), cfg.Timeout())
	case "keyring":
		return NewKeyring(cfg.String("service", KeyringService)), nil
	case "sql", "postgres", "postgresql", "mysql", "mariadb":
		return OpenSQL(ctx, cfg)
	case "aws", "aws.secretsmanager":
		return NewAWS(ctx, cfg)
	case "ssm", "aws.ssm":
		return NewSSM(ctx, cfg)
	case "akeyless":
		return NewAkeyless(cfg)
	case "azure", "azure.keyvault":
		return NewAzure(cfg)
	case "gcp", "gcp.secretmanager":
		return NewGCP(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported credential store type %q", cfg.Type)
	}
}

func encodeRecord(rec vault.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode credential record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (vault.Record, error) {
	var rec vault.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return vault.Record{}, fmt.Errorf("decode credential record: %w", err)
	}
	return rec, nil
}

func sortedKeys(keys []connector.ProviderKey) []connector.ProviderKey {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// secretName maps a provider to the name used in cloud secret stores.
func secretName(prefix, sep string, key connector.ProviderKey) string {
	return prefix + sep + string(key)
}

// providerFromName reverses secretName, ignoring foreign names.
func providerFromName(prefix, sep, name string) (connector.ProviderKey, bool) {
	rest, ok := strings.CutPrefix(name, prefix+sep)
	if !ok {
		return "", false
	}
	key := connector.ProviderKey(rest)
	return key, key.Valid()
}
