package connectors

import (
	"fmt"
	"sync"

	"github.com/systmms/finlink/internal/config"
	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/pkg/connector"
)

// Factory creates a connector from its endpoint and decrypted credentials.
// Construction must not perform network I/O; that happens in Connect.
type Factory func(ep Endpoint, creds connector.RawCredentials, logger *logging.Logger) (connector.Connector, error)

// Registry maps providers to connector factories and endpoints.
type Registry struct {
	mu          sync.RWMutex
	factories   map[connector.ProviderKey]Factory
	implemented map[connector.ProviderKey]bool
	endpoints   map[connector.ProviderKey]Endpoint
}

// NewEmptyRegistry creates a registry with no factories. Endpoints default
// to the built-in table.
func NewEmptyRegistry() *Registry {
	r := &Registry{
		factories:   make(map[connector.ProviderKey]Factory),
		implemented: make(map[connector.ProviderKey]bool),
		endpoints:   make(map[connector.ProviderKey]Endpoint),
	}
	for _, key := range connector.AllProviders() {
		r.endpoints[key] = DefaultEndpoint(key)
	}
	return r
}

// NewRegistry creates a registry with the built-in connector variants
func NewRegistry() *Registry {
	r := NewEmptyRegistry()

	r.RegisterFactory(connector.Scotia, NewScotiaFactory)
	r.RegisterFactory(connector.TD, NewTDFactory)
	r.RegisterFactory(connector.BMO, NewBMOFactory)

	r.RegisterPending(connector.RBC)
	r.RegisterPending(connector.CIBC)
	r.RegisterPending(connector.Desjardins)
	r.RegisterPending(connector.National)

	return r
}

// RegisterFactory registers a working connector factory for key
func (r *Registry) RegisterFactory(key connector.ProviderKey, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = factory
	r.implemented[key] = true
}

// RegisterPending marks key as known but without a connector variant.
func (r *Registry) RegisterPending(key connector.ProviderKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[key] = pendingFactory
	r.implemented[key] = false
}

// ApplyOverrides merges configured endpoint overrides into the table.
func (r *Registry) ApplyOverrides(overrides map[connector.ProviderKey]config.EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, o := range overrides {
		base, ok := r.endpoints[key]
		if !ok {
			base = DefaultEndpoint(key)
		}
		r.endpoints[key] = base.Override(o)
	}
}

// Endpoint returns the effective endpoint for key.
func (r *Registry) Endpoint(key connector.ProviderKey) Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ep, ok := r.endpoints[key]; ok {
		return ep
	}
	return DefaultEndpoint(key)
}

// Create builds a connector for key. Pending providers yield
// connector.NotImplementedError.
func (r *Registry) Create(key connector.ProviderKey, creds connector.RawCredentials, logger *logging.Logger) (connector.Connector, error) {
	r.mu.RLock()
	factory, exists := r.factories[key]
	implemented := r.implemented[key]
	ep, hasEndpoint := r.endpoints[key]
	r.mu.RUnlock()

	if !exists {
		if key.Valid() {
			return nil, connector.NotImplementedError{Provider: key}
		}
		return nil, connector.UnknownProviderError{Name: string(key)}
	}
	if !hasEndpoint {
		ep = DefaultEndpoint(key)
	}
	if !implemented {
		return factory(ep, creds, logger)
	}
	if err := connector.CheckKind(key, creds); err != nil {
		return nil, fmt.Errorf("create %s connector: %w", key, err)
	}

	return factory(ep, creds, logger.With("provider", string(key)))
}

// IsImplemented reports whether key has a working connector variant
func (r *Registry) IsImplemented(key connector.ProviderKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.implemented[key]
}

// Implemented returns the providers with working variants, sorted.
func (r *Registry) Implemented() []connector.ProviderKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []connector.ProviderKey
	for key, ok := range r.implemented {
		if ok {
			keys = append(keys, key)
		}
	}
	connector.SortKeys(keys)
	return keys
}

func pendingFactory(ep Endpoint, _ connector.RawCredentials, _ *logging.Logger) (connector.Connector, error) {
	return nil, connector.NotImplementedError{Provider: ep.Provider}
}
