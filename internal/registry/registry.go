// Package registry owns the live provider adapters of a finlink process.
//
// A Registry seals every provider's credentials with the vault, persists the
// sealed records through a credstore.Store, and keeps one connected
// connector.Connector per implemented provider. Connecting is all-or-nothing
// during Initialize; storing credentials is best effort. After Initialize the
// registry serves lookups, fans health checks out across adapters, and swaps
// individual adapters in place on reload.
//
// Example:
//
//	reg := registry.New(v,
//	    registry.WithStore(store),
//	    registry.WithFactories(connectors.NewRegistry()),
//	    registry.WithLogger(logger),
//	)
//	if err := reg.Initialize(ctx, bundle); err != nil {
//	    return err
//	}
//	defer reg.DisconnectAll(context.Background())
//
//	conn, err := reg.GetAdapter(connector.Scotia)
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/systmms/finlink/internal/connectors"
	"github.com/systmms/finlink/internal/credstore"
	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
)

// DefaultHealthConcurrency bounds parallel health checks.
const DefaultHealthConcurrency = 4

// Sealer seals and opens provider credentials. *vault.Vault implements it.
type Sealer interface {
	SealCredentials(provider connector.ProviderKey, creds connector.RawCredentials) (vault.Record, error)
	OpenCredentials(rec vault.Record) (connector.RawCredentials, error)
}

// Registry manages the connector for each provider.
//
// All methods are safe for concurrent use. Connectors returned by GetAdapter
// and GetAvailableAdapters are borrowed: the registry may disconnect them on
// reload or shutdown.
type Registry struct {
	sealer      Sealer
	store       credstore.Store
	factories   *connectors.Registry
	logger      *logging.Logger
	metrics     *Metrics
	concurrency int

	mu             sync.RWMutex
	initialized    bool
	closed         bool
	adapters       map[connector.ProviderKey]connector.Connector
	credentialRefs map[connector.ProviderKey]vault.Record

	reloadMu    sync.Mutex
	reloadLocks map[connector.ProviderKey]*sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore persists sealed credentials. Without a store, records live only
// in memory for the life of the registry.
func WithStore(s credstore.Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithFactories sets the connector factories. Defaults to
// connectors.NewRegistry().
func WithFactories(f *connectors.Registry) Option {
	return func(r *Registry) {
		if f != nil {
			r.factories = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics records lifecycle metrics. Nil disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithHealthConcurrency bounds the number of concurrent health checks.
func WithHealthConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New returns an uninitialized registry.
func New(sealer Sealer, opts ...Option) *Registry {
	r := &Registry{
		sealer:         sealer,
		factories:      connectors.NewRegistry(),
		concurrency:    DefaultHealthConcurrency,
		adapters:       make(map[connector.ProviderKey]connector.Connector),
		credentialRefs: make(map[connector.ProviderKey]vault.Record),
		reloadLocks:    make(map[connector.ProviderKey]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize seals and stores every provider's credentials, then connects
// every implemented provider.
//
// A second call on an initialized registry logs a warning and returns nil;
// bundles are never merged. Credential storage failures are logged and
// skipped. Any connect failure aborts the call with an *InitError, and
// adapters connected earlier in the same call are disconnected. Providers
// without a connector variant are logged as pending and skipped.
func (r *Registry) Initialize(ctx context.Context, bundle map[connector.ProviderKey]connector.RawCredentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.initialized {
		r.logger.Warn("adapter registry already initialized, ignoring new credentials")
		return nil
	}

	keys := make([]connector.ProviderKey, 0, len(bundle))
	for key := range bundle {
		keys = append(keys, key)
	}
	connector.SortKeys(keys)

	for _, key := range keys {
		if !key.Valid() {
			r.logger.Warn("skipping credentials for unknown provider %q", string(key))
			continue
		}
		rec, err := r.sealer.SealCredentials(key, bundle[key])
		if err != nil {
			r.logger.Error("failed to store credentials for %s: %v", key, err)
			continue
		}
		r.credentialRefs[key] = rec
		if err := r.persist(ctx, key, rec); err != nil {
			r.logger.Error("failed to store credentials for %s: %v", key, err)
		}
	}

	live := make(map[connector.ProviderKey]connector.Connector)
	for _, key := range keys {
		if !key.Valid() {
			continue
		}
		if !r.factories.IsImplemented(key) {
			r.logger.Info("%s adapter pending implementation", key)
			continue
		}

		conn, err := r.connect(ctx, key, bundle[key])
		if err != nil {
			r.rollback(ctx, live)
			return &InitError{Provider: key, Err: err}
		}
		live[key] = conn
		r.logger.Info("%s adapter initialized", key)
	}

	r.adapters = live
	r.initialized = true
	r.metrics.setLive(len(live))
	r.logger.Info("adapter registry initialized with %d adapters", len(live))
	return nil
}

// GetAdapter returns the live connector for key.
func (r *Registry) GetAdapter(key connector.ProviderKey) (connector.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.usableLocked(); err != nil {
		return nil, err
	}
	conn, ok := r.adapters[key]
	if !ok {
		return nil, &AdapterNotFoundError{Provider: key}
	}
	return conn, nil
}

// GetAvailableAdapters returns a copy of the live adapter map.
func (r *Registry) GetAvailableAdapters() map[connector.ProviderKey]connector.Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[connector.ProviderKey]connector.Connector, len(r.adapters))
	for k, v := range r.adapters {
		out[k] = v
	}
	return out
}

// HasAdapter reports whether key has a live connector.
func (r *Registry) HasAdapter(key connector.ProviderKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[key]
	return ok
}

// Providers returns the providers with a live connector, sorted.
func (r *Registry) Providers() []connector.ProviderKey {
	r.mu.RLock()
	keys := make([]connector.ProviderKey, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	connector.SortKeys(keys)
	return keys
}

// HealthCheckAll probes every live adapter and reports which are healthy.
// Errors are logged and recorded as false; it never fails as a whole.
func (r *Registry) HealthCheckAll(ctx context.Context) map[connector.ProviderKey]bool {
	report := r.HealthReport(ctx)
	out := make(map[connector.ProviderKey]bool, len(report))
	for k, status := range report {
		out[k] = status.Healthy
	}
	return out
}

// HealthReport probes every live adapter concurrently, bounded by the
// configured concurrency, and returns the full status of each.
func (r *Registry) HealthReport(ctx context.Context) map[connector.ProviderKey]connector.HealthStatus {
	snapshot := r.GetAvailableAdapters()

	var (
		mu     sync.Mutex
		report = make(map[connector.ProviderKey]connector.HealthStatus, len(snapshot))
		g      errgroup.Group
	)
	g.SetLimit(r.concurrency)

	for key, conn := range snapshot {
		key, conn := key, conn
		g.Go(func() error {
			status := r.check(ctx, key, conn)
			mu.Lock()
			report[key] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return report
}

func (r *Registry) check(ctx context.Context, key connector.ProviderKey, conn connector.Connector) (status connector.HealthStatus) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("health check for %s panicked: %v", key, p)
			status = connector.HealthStatus{Detail: fmt.Sprintf("panic: %v", p), CheckedAt: time.Now()}
		}
		r.metrics.recordHealth(key, status.Healthy, time.Since(start))
	}()

	status, err := conn.HealthCheck(ctx)
	if err != nil {
		r.logger.Warn("health check failed for %s: %v", key, err)
		status.Healthy = false
		if status.Detail == "" {
			status.Detail = err.Error()
		}
	}
	if status.CheckedAt.IsZero() {
		status.CheckedAt = time.Now()
	}
	return status
}

// DisconnectAll disconnects every adapter, logging individual failures,
// then clears the adapter map and closes the registry. A closed registry
// cannot be initialized again.
func (r *Registry) DisconnectAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]connector.ProviderKey, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	connector.SortKeys(keys)

	for _, key := range keys {
		if err := r.adapters[key].Disconnect(ctx); err != nil {
			r.logger.Error("failed to disconnect %s adapter: %v", key, err)
		}
		r.metrics.forget(key)
	}

	r.adapters = make(map[connector.ProviderKey]connector.Connector)
	r.closed = true
	r.metrics.setLive(0)
	r.logger.Info("all adapters disconnected")
}

// ReloadAdapter rebuilds the connector for key from its sealed credentials.
//
// The fresh connector is connected before it replaces the installed one, so
// readers always see a connected adapter. The replaced connector is then
// disconnected best effort. Reloads of the same provider are serialized.
func (r *Registry) ReloadAdapter(ctx context.Context, key connector.ProviderKey) error {
	lock := r.providerLock(key)
	lock.Lock()
	defer lock.Unlock()

	err := r.reload(ctx, key)
	r.metrics.recordReload(key, err)
	return err
}

func (r *Registry) reload(ctx context.Context, key connector.ProviderKey) error {
	r.mu.RLock()
	usable := r.usableLocked()
	rec, ok := r.credentialRefs[key]
	r.mu.RUnlock()

	if usable != nil {
		return usable
	}
	if !ok {
		var err error
		rec, err = r.loadRecord(ctx, key)
		if err != nil {
			return err
		}
	}
	if !r.factories.IsImplemented(key) {
		return connector.NotImplementedError{Provider: key}
	}

	creds, err := r.sealer.OpenCredentials(rec)
	if err != nil {
		return &ReloadError{Provider: key, Err: err}
	}
	conn, err := r.connect(ctx, key, creds)
	if err != nil {
		return &ReloadError{Provider: key, Err: err}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.disconnect(ctx, key, conn)
		return ErrClosed
	}
	old := r.adapters[key]
	r.adapters[key] = conn
	r.credentialRefs[key] = rec
	r.metrics.setLive(len(r.adapters))
	r.mu.Unlock()

	if old != nil {
		r.disconnect(ctx, key, old)
	}
	r.logger.Info("%s adapter reloaded", key)
	return nil
}

// RotateCredentials seals and stores new credentials for key, then reloads
// its adapter. For providers pending implementation the credentials are
// stored and no reload happens.
func (r *Registry) RotateCredentials(ctx context.Context, key connector.ProviderKey, creds connector.RawCredentials) error {
	if err := connector.CheckKind(key, creds); err != nil {
		return fmt.Errorf("rotate %s credentials: %w", key, err)
	}

	r.mu.RLock()
	usable := r.usableLocked()
	r.mu.RUnlock()
	if usable != nil {
		return usable
	}

	rec, err := r.sealer.SealCredentials(key, creds)
	if err != nil {
		return fmt.Errorf("rotate %s credentials: %w", key, err)
	}
	if err := r.persist(ctx, key, rec); err != nil {
		return fmt.Errorf("rotate %s credentials: %w", key, err)
	}

	r.mu.Lock()
	r.credentialRefs[key] = rec
	r.mu.Unlock()

	if !r.factories.IsImplemented(key) {
		r.logger.Info("stored rotated credentials for %s, adapter pending implementation", key)
		return nil
	}
	return r.ReloadAdapter(ctx, key)
}

// AdapterStatus describes one provider as seen by the registry.
type AdapterStatus struct {
	Provider       connector.ProviderKey `json:"provider"`
	Implemented    bool                  `json:"implemented"`
	HasCredentials bool                  `json:"has_credentials"`
	Live           bool                  `json:"live"`
	State          connector.State       `json:"state"`
}

// Status reports every known provider, sorted by key.
func (r *Registry) Status() []AdapterStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := connector.AllProviders()
	out := make([]AdapterStatus, 0, len(all))
	for _, key := range all {
		st := AdapterStatus{
			Provider:    key,
			Implemented: r.factories.IsImplemented(key),
			State:       connector.StateUninitialized,
		}
		_, st.HasCredentials = r.credentialRefs[key]
		if conn, ok := r.adapters[key]; ok {
			st.Live = true
			st.State = conn.State()
		}
		out = append(out, st)
	}
	return out
}

// connect builds and connects one adapter, recording the outcome.
func (r *Registry) connect(ctx context.Context, key connector.ProviderKey, creds connector.RawCredentials) (connector.Connector, error) {
	conn, err := r.factories.Create(key, creds, r.logger)
	if err != nil {
		r.metrics.recordConnect(key, err)
		return nil, err
	}

	start := time.Now()
	err = conn.Connect(ctx)
	r.metrics.recordConnect(key, err)

	zl := r.logger.Zerolog()
	var event *zerolog.Event
	if err != nil {
		event = zl.Warn().Err(err)
	} else {
		event = zl.Info()
	}
	event.Str("provider", string(key)).
		Dur("duration", time.Since(start)).
		Bool("success", err == nil).
		Msg("adapter connect")

	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (r *Registry) disconnect(ctx context.Context, key connector.ProviderKey, conn connector.Connector) {
	if err := conn.Disconnect(ctx); err != nil {
		r.logger.Warn("failed to disconnect %s adapter: %v", key, err)
	}
}

func (r *Registry) rollback(ctx context.Context, live map[connector.ProviderKey]connector.Connector) {
	for key, conn := range live {
		r.disconnect(ctx, key, conn)
	}
}

func (r *Registry) persist(ctx context.Context, key connector.ProviderKey, rec vault.Record) error {
	if r.store == nil {
		return nil
	}
	return r.store.Put(ctx, key, rec)
}

func (r *Registry) loadRecord(ctx context.Context, key connector.ProviderKey) (vault.Record, error) {
	if r.store == nil {
		return vault.Record{}, &CredentialsNotFoundError{Provider: key}
	}
	rec, err := r.store.Get(ctx, key)
	if errors.Is(err, credstore.ErrNotFound) {
		return vault.Record{}, &CredentialsNotFoundError{Provider: key}
	}
	if err != nil {
		return vault.Record{}, &ReloadError{Provider: key, Err: err}
	}
	return rec, nil
}

func (r *Registry) usableLocked() error {
	if r.closed {
		return ErrClosed
	}
	if !r.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (r *Registry) providerLock(key connector.ProviderKey) *sync.Mutex {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	lock, ok := r.reloadLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.reloadLocks[key] = lock
	}
	return lock
}
