package credstore

import (
	"context"
	"sync"

	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	records map[connector.ProviderKey]vault.Record
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[connector.ProviderKey]vault.Record)}
}

func (m *Memory) Put(_ context.Context, key connector.ProviderKey, rec vault.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = rec
	return nil
}

func (m *Memory) Get(_ context.Context, key connector.ProviderKey) (vault.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return vault.Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) Delete(_ context.Context, key connector.ProviderKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *Memory) List(_ context.Context) ([]connector.ProviderKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]connector.ProviderKey, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	return sortedKeys(keys), nil
}

func (m *Memory) Close() error { return nil }
