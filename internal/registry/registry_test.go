package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/finlink/internal/credstore"
	"github.com/systmms/finlink/internal/registry"
	"github.com/systmms/finlink/internal/vault"
	"github.com/systmms/finlink/pkg/connector"
	"github.com/systmms/finlink/tests/fakes"
	"github.com/systmms/finlink/tests/testutil"
)

var (
	scotiaCreds = connector.OAuthClientCredentials{ClientID: "scotia-id", ClientSecret: "scotia-secret", TokenURL: "https://auth.example/token"}
	bmoCreds    = connector.APIKeyCredentials{APIKey: "bmo-key", APISecret: "bmo-secret"}
	tdCreds     = connector.CertificateCredentials{CertPath: "/etc/td/cert.pem", KeyPath: "/etc/td/key.pem"}
	rbcCreds    = connector.CertificateCredentials{CertPath: "/etc/rbc/cert.pem", KeyPath: "/etc/rbc/key.pem"}
)

// failingStore rejects every write.
type failingStore struct {
	credstore.Store
}

func (failingStore) Put(context.Context, connector.ProviderKey, vault.Record) error {
	return errors.New("disk full")
}

type harness struct {
	reg   *registry.Registry
	set   *fakes.ConnectorSet
	store credstore.Store
	vault *vault.Vault
	logs  *testutil.TestLogger
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	store   credstore.Store
	metrics *registry.Metrics
}

func withStore(s credstore.Store) harnessOption {
	return func(c *harnessConfig) { c.store = s }
}

func withMetrics(m *registry.Metrics) harnessOption {
	return func(c *harnessConfig) { c.metrics = m }
}

func newHarness(t *testing.T, implemented []connector.ProviderKey, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{store: credstore.NewMemory()}
	for _, opt := range opts {
		opt(&cfg)
	}

	v, err := vault.New("registry-test-master-secret", vault.WithIterations(1000))
	require.NoError(t, err)
	t.Cleanup(v.Close)

	logs := testutil.NewTestLogger(t)

	set := fakes.NewConnectorSet()
	reg := registry.New(v,
		registry.WithStore(cfg.store),
		registry.WithFactories(set.Factories(implemented...)),
		registry.WithLogger(logs.Logger()),
		registry.WithMetrics(cfg.metrics),
		registry.WithHealthConcurrency(2),
	)

	return &harness{reg: reg, set: set, store: cfg.store, vault: v, logs: logs}
}

func TestRegistry_InitializeWithPendingProvider(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.Scotia})
	ctx := context.Background()

	err := h.reg.Initialize(ctx, map[connector.ProviderKey]connector.RawCredentials{
		connector.Scotia: scotiaCreds,
		connector.RBC:    rbcCreds,
	})
	require.NoError(t, err)

	assert.Len(t, h.reg.GetAvailableAdapters(), 1)
	assert.True(t, h.reg.HasAdapter(connector.Scotia))
	assert.False(t, h.reg.HasAdapter(connector.RBC))
	h.logs.AssertContains(t, "rbc adapter pending implementation")
	h.logs.AssertRedacted(t, scotiaCreds.ClientSecret)
	h.logs.AssertRedacted(t, rbcCreds.KeyPath)

	// Credentials are stored for every provider, implemented or not.
	stored, err := h.store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []connector.ProviderKey{connector.RBC, connector.Scotia}, stored)

	rec, err := h.store.Get(ctx, connector.RBC)
	require.NoError(t, err)
	assert.NotContains(t, rec.Ciphertext, "rbc/cert.pem")
	opened, err := h.vault.OpenCredentials(rec)
	require.NoError(t, err)
	assert.Equal(t, rbcCreds, opened)

	conn, err := h.reg.GetAdapter(connector.Scotia)
	require.NoError(t, err)
	assert.Equal(t, connector.StateConnected, conn.State())
	assert.Equal(t, scotiaCreds, h.set.Latest(connector.Scotia).Credentials())
}

func TestRegistry_InitializeTwiceIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.Scotia})
	ctx := context.Background()
	bundle := map[connector.ProviderKey]connector.RawCredentials{connector.Scotia: scotiaCreds}

	require.NoError(t, h.reg.Initialize(ctx, bundle))
	require.NoError(t, h.reg.Initialize(ctx, bundle))

	assert.Len(t, h.set.Created(connector.Scotia), 1)
	assert.Equal(t, 1, h.set.Latest(connector.Scotia).CallCount("Connect"))
	h.logs.AssertContains(t, "already initialized")
}

func TestRegistry_InitializeConnectFailureCommitsNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.BMO, connector.Scotia})
	h.set.Configure(connector.Scotia, func(f *fakes.FakeConnector) {
		f.WithConnectError(errors.New("token endpoint unreachable"))
	})

	err := h.reg.Initialize(context.Background(), map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO:    bmoCreds,
		connector.Scotia: scotiaCreds,
	})

	var initErr *registry.InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, connector.Scotia, initErr.Provider)
	assert.Contains(t, err.Error(), "adapter registry initialization failed")

	var connectErr connector.ConnectError
	assert.ErrorAs(t, err, &connectErr)

	assert.Empty(t, h.reg.GetAvailableAdapters())
	assert.False(t, h.reg.HasAdapter(connector.BMO))
	_, err = h.reg.GetAdapter(connector.BMO)
	assert.ErrorIs(t, err, registry.ErrNotInitialized)

	// bmo sorts first and connected; it must have been torn down.
	bmo := h.set.Latest(connector.BMO)
	require.NotNil(t, bmo)
	assert.Equal(t, 1, bmo.CallCount("Disconnect"))
	assert.Equal(t, connector.StateDisconnected, bmo.State())
}

func TestRegistry_InitializeFactoryFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.TD})
	h.set.FailConstruction(connector.TD, errors.New("bad certificate"))

	err := h.reg.Initialize(context.Background(), map[connector.ProviderKey]connector.RawCredentials{
		connector.TD: tdCreds,
	})
	var initErr *registry.InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, connector.TD, initErr.Provider)
}

func TestRegistry_InitializeStoreFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.BMO},
		withStore(failingStore{Store: credstore.NewMemory()}))

	err := h.reg.Initialize(context.Background(), map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO: bmoCreds,
	})
	require.NoError(t, err)
	assert.True(t, h.reg.HasAdapter(connector.BMO))
	h.logs.AssertContains(t, "failed to store credentials for bmo")

	// The sealed record is still held in memory, so reload works.
	require.NoError(t, h.reg.ReloadAdapter(context.Background(), connector.BMO))
	assert.Len(t, h.set.Created(connector.BMO), 2)
}

func TestRegistry_InitializeSkipsUnknownProvider(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.BMO})
	err := h.reg.Initialize(context.Background(), map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO:                bmoCreds,
		connector.ProviderKey("hsbc"): bmoCreds,
	})
	require.NoError(t, err)
	assert.Equal(t, []connector.ProviderKey{connector.BMO}, h.reg.Providers())
	h.logs.AssertContains(t, `unknown provider \"hsbc\"`)
}

func TestRegistry_LookupBeforeInitialize(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.Scotia})

	_, err := h.reg.GetAdapter(connector.Scotia)
	assert.ErrorIs(t, err, registry.ErrNotInitialized)
	assert.NotErrorIs(t, err, registry.ErrClosed)

	var notFound *registry.AdapterNotFoundError
	assert.False(t, errors.As(err, &notFound))

	assert.False(t, h.reg.HasAdapter(connector.Scotia))
	assert.Empty(t, h.reg.GetAvailableAdapters())
	assert.Empty(t, h.reg.HealthCheckAll(context.Background()))
}

func TestRegistry_GetAdapterNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.Scotia})
	require.NoError(t, h.reg.Initialize(context.Background(), map[connector.ProviderKey]connector.RawCredentials{
		connector.Scotia: scotiaCreds,
		connector.RBC:    rbcCreds,
	}))

	tests := []struct {
		name string
		key  connector.ProviderKey
	}{
		{"pending provider", connector.RBC},
		{"never credentialed", connector.TD},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := h.reg.GetAdapter(tt.key)
			var notFound *registry.AdapterNotFoundError
			require.ErrorAs(t, err, &notFound)
			assert.Equal(t, tt.key, notFound.Provider)
			assert.NotErrorIs(t, err, registry.ErrNotInitialized)
		})
	}
}

func TestRegistry_GetAvailableAdaptersIsACopy(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.Scotia})
	require.NoError(t, h.reg.Initialize(context.Background(), map[connector.ProviderKey]connector.RawCredentials{
		connector.Scotia: scotiaCreds,
	}))

	adapters := h.reg.GetAvailableAdapters()
	delete(adapters, connector.Scotia)
	adapters[connector.TD] = fakes.NewFakeConnector(connector.TD)

	assert.True(t, h.reg.HasAdapter(connector.Scotia))
	assert.False(t, h.reg.HasAdapter(connector.TD))
	assert.Len(t, h.reg.GetAvailableAdapters(), 1)
}

func TestRegistry_HealthCheckAll(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.BMO, connector.Scotia, connector.TD})
	h.set.Configure(connector.Scotia, func(f *fakes.FakeConnector) {
		f.WithHealthError(errors.New("503 from status endpoint"))
	})
	h.set.Configure(connector.TD, func(f *fakes.FakeConnector) {
		f.WithHealthy(false)
	})

	require.NoError(t, h.reg.Initialize(context.Background(), map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO:    bmoCreds,
		connector.Scotia: scotiaCreds,
		connector.TD:     tdCreds,
	}))

	got := h.reg.HealthCheckAll(context.Background())
	assert.Equal(t, map[connector.ProviderKey]bool{
		connector.BMO:    true,
		connector.Scotia: false,
		connector.TD:     false,
	}, got)
	h.logs.AssertContains(t, "health check failed for scotia")

	// Failed checks degrade but keep the adapter installed.
	assert.True(t, h.reg.HasAdapter(connector.Scotia))
	assert.Equal(t, connector.StateDegraded, h.set.Latest(connector.Scotia).State())
}

func TestRegistry_HealthReportDetails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.BMO, connector.Scotia})
	h.set.Configure(connector.Scotia, func(f *fakes.FakeConnector) {
		f.WithHealthError(errors.New("connection reset"))
	})
	require.NoError(t, h.reg.Initialize(context.Background(), map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO:    bmoCreds,
		connector.Scotia: scotiaCreds,
	}))

	report := h.reg.HealthReport(context.Background())
	require.Len(t, report, 2)
	assert.True(t, report[connector.BMO].Healthy)
	assert.False(t, report[connector.BMO].CheckedAt.IsZero())
	assert.False(t, report[connector.Scotia].Healthy)
	assert.Contains(t, report[connector.Scotia].Detail, "connection reset")
}

func TestRegistry_DisconnectAll(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.BMO, connector.Scotia})
	h.set.Configure(connector.BMO, func(f *fakes.FakeConnector) {
		f.WithDisconnectError(errors.New("session already expired"))
	})
	ctx := context.Background()
	bundle := map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO:    bmoCreds,
		connector.Scotia: scotiaCreds,
	}
	require.NoError(t, h.reg.Initialize(ctx, bundle))

	h.reg.DisconnectAll(ctx)

	for _, key := range []connector.ProviderKey{connector.BMO, connector.Scotia} {
		fake := h.set.Latest(key)
		assert.Equal(t, 1, fake.CallCount("Disconnect"), key)
		assert.Equal(t, connector.StateDisconnected, fake.State(), key)
	}

	h.logs.AssertContains(t, "failed to disconnect bmo adapter")
	h.logs.AssertContains(t, "all adapters disconnected")

	assert.Empty(t, h.reg.GetAvailableAdapters())
	assert.False(t, h.reg.HasAdapter(connector.BMO))

	_, err := h.reg.GetAdapter(connector.Scotia)
	assert.ErrorIs(t, err, registry.ErrNotInitialized)
	assert.ErrorIs(t, err, registry.ErrClosed)

	assert.ErrorIs(t, h.reg.Initialize(ctx, bundle), registry.ErrClosed)
	assert.ErrorIs(t, h.reg.ReloadAdapter(ctx, connector.BMO), registry.ErrClosed)

	// A second shutdown is harmless.
	h.reg.DisconnectAll(ctx)
}

func TestRegistry_ReloadErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.BMO, connector.TD})
	ctx := context.Background()
	require.NoError(t, h.reg.Initialize(ctx, map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO: bmoCreds,
		connector.RBC: rbcCreds,
	}))

	t.Run("no stored credentials", func(t *testing.T) {
		err := h.reg.ReloadAdapter(ctx, connector.TD)
		var notFound *registry.CredentialsNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, connector.TD, notFound.Provider)
	})

	t.Run("no connector variant", func(t *testing.T) {
		err := h.reg.ReloadAdapter(ctx, connector.RBC)
		var notImpl connector.NotImplementedError
		require.ErrorAs(t, err, &notImpl)
		assert.ErrorIs(t, err, connector.ErrNotImplemented)
		assert.Equal(t, connector.RBC, notImpl.Provider)
	})

	t.Run("before initialize", func(t *testing.T) {
		fresh := newHarness(t, []connector.ProviderKey{connector.BMO})
		assert.ErrorIs(t, fresh.reg.ReloadAdapter(ctx, connector.BMO), registry.ErrNotInitialized)
	})
}

func TestRegistry_ReloadSwapsAdapter(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.BMO})
	ctx := context.Background()
	require.NoError(t, h.reg.Initialize(ctx, map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO: bmoCreds,
	}))

	before, err := h.reg.GetAdapter(connector.BMO)
	require.NoError(t, err)

	require.NoError(t, h.reg.ReloadAdapter(ctx, connector.BMO))

	after, err := h.reg.GetAdapter(connector.BMO)
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Equal(t, connector.StateConnected, after.State())
	assert.Equal(t, connector.StateDisconnected, before.State())

	created := h.set.Created(connector.BMO)
	require.Len(t, created, 2)
	assert.Equal(t, bmoCreds, created[1].Credentials())
}

func TestRegistry_ReloadFailureKeepsOldAdapter(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.BMO})
	ctx := context.Background()
	require.NoError(t, h.reg.Initialize(ctx, map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO: bmoCreds,
	}))
	before, err := h.reg.GetAdapter(connector.BMO)
	require.NoError(t, err)

	h.set.Configure(connector.BMO, func(f *fakes.FakeConnector) {
		f.WithConnectError(errors.New("signature rejected"))
	})

	err = h.reg.ReloadAdapter(ctx, connector.BMO)
	var reloadErr *registry.ReloadError
	require.ErrorAs(t, err, &reloadErr)
	assert.Equal(t, connector.BMO, reloadErr.Provider)

	after, err := h.reg.GetAdapter(connector.BMO)
	require.NoError(t, err)
	assert.Same(t, before, after)
	assert.Equal(t, connector.StateConnected, after.State())
	assert.Equal(t, 0, h.set.Created(connector.BMO)[0].CallCount("Disconnect"))
}

func TestRegistry_ReloadFromStore(t *testing.T) {
	t.Parallel()

	store := credstore.NewMemory()
	h := newHarness(t, []connector.ProviderKey{connector.BMO}, withStore(store))
	ctx := context.Background()

	// Sealed by a previous run of the process.
	rec, err := h.vault.SealCredentials(connector.BMO, bmoCreds)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, connector.BMO, rec))

	require.NoError(t, h.reg.Initialize(ctx, nil))
	assert.False(t, h.reg.HasAdapter(connector.BMO))

	require.NoError(t, h.reg.ReloadAdapter(ctx, connector.BMO))
	assert.True(t, h.reg.HasAdapter(connector.BMO))
	assert.Equal(t, bmoCreds, h.set.Latest(connector.BMO).Credentials())
}

func TestRegistry_RotateCredentials(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.BMO})
	ctx := context.Background()
	require.NoError(t, h.reg.Initialize(ctx, map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO: bmoCreds,
	}))

	rotated := connector.APIKeyCredentials{APIKey: "bmo-key-2", APISecret: "bmo-secret-2"}
	require.NoError(t, h.reg.RotateCredentials(ctx, connector.BMO, rotated))

	assert.Equal(t, rotated, h.set.Latest(connector.BMO).Credentials())

	rec, err := h.store.Get(ctx, connector.BMO)
	require.NoError(t, err)
	opened, err := h.vault.OpenCredentials(rec)
	require.NoError(t, err)
	assert.Equal(t, rotated, opened)

	t.Run("wrong kind", func(t *testing.T) {
		err := h.reg.RotateCredentials(ctx, connector.BMO, tdCreds)
		var mismatch connector.KindMismatchError
		assert.ErrorAs(t, err, &mismatch)
	})

	t.Run("pending provider stores only", func(t *testing.T) {
		require.NoError(t, h.reg.RotateCredentials(ctx, connector.RBC, rbcCreds))
		assert.False(t, h.reg.HasAdapter(connector.RBC))
		_, err := h.store.Get(ctx, connector.RBC)
		assert.NoError(t, err)
	})
}

func TestRegistry_Status(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.BMO, connector.Scotia})
	require.NoError(t, h.reg.Initialize(context.Background(), map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO: bmoCreds,
		connector.RBC: rbcCreds,
	}))

	byKey := make(map[connector.ProviderKey]registry.AdapterStatus)
	for _, st := range h.reg.Status() {
		byKey[st.Provider] = st
	}
	require.Len(t, byKey, len(connector.AllProviders()))

	assert.Equal(t, registry.AdapterStatus{
		Provider: connector.BMO, Implemented: true, HasCredentials: true, Live: true, State: connector.StateConnected,
	}, byKey[connector.BMO])
	assert.Equal(t, registry.AdapterStatus{
		Provider: connector.RBC, HasCredentials: true, State: connector.StateUninitialized,
	}, byKey[connector.RBC])
	assert.Equal(t, registry.AdapterStatus{
		Provider: connector.Scotia, Implemented: true, State: connector.StateUninitialized,
	}, byKey[connector.Scotia])
}

func TestRegistry_ConcurrentReadsAndReloads(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []connector.ProviderKey{connector.BMO, connector.Scotia})
	ctx := context.Background()
	require.NoError(t, h.reg.Initialize(ctx, map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO:    bmoCreds,
		connector.Scotia: scotiaCreds,
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.reg.ReloadAdapter(ctx, connector.BMO))
		}()
		go func() {
			defer wg.Done()
			conn, err := h.reg.GetAdapter(connector.BMO)
			if assert.NoError(t, err) {
				assert.Equal(t, connector.BMO, conn.Provider())
			}
		}()
		go func() {
			defer wg.Done()
			h.reg.HealthCheckAll(ctx)
		}()
	}
	wg.Wait()

	created := h.set.Created(connector.BMO)
	assert.Len(t, created, 9)

	// Exactly one instance is left connected and installed.
	installed, err := h.reg.GetAdapter(connector.BMO)
	require.NoError(t, err)
	connected := 0
	for _, fake := range created {
		if fake.State() != connector.StateDisconnected {
			connected++
			assert.Same(t, connector.Connector(fake), installed)
		}
	}
	assert.Equal(t, 1, connected)
}

func TestRegistry_Metrics(t *testing.T) {
	t.Parallel()

	promReg := prometheus.NewRegistry()
	metrics := registry.NewMetrics(promReg)

	h := newHarness(t, []connector.ProviderKey{connector.BMO, connector.Scotia}, withMetrics(metrics))
	h.set.Configure(connector.Scotia, func(f *fakes.FakeConnector) {
		f.WithHealthy(false)
	})
	ctx := context.Background()
	require.NoError(t, h.reg.Initialize(ctx, map[connector.ProviderKey]connector.RawCredentials{
		connector.BMO:    bmoCreds,
		connector.Scotia: scotiaCreds,
	}))
	h.reg.HealthCheckAll(ctx)
	require.NoError(t, h.reg.ReloadAdapter(ctx, connector.BMO))

	families, err := promReg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "finlink_adapter_connect_total")
	assert.Contains(t, names, "finlink_adapter_reload_total")
	assert.Contains(t, names, "finlink_adapter_health_status")
	assert.Contains(t, names, "finlink_adapter_health_check_duration_seconds")
	assert.Contains(t, names, "finlink_adapters_live")

	assert.Equal(t, 2, promtest.CollectAndCount(promReg, "finlink_adapter_health_status"))
	assert.Equal(t, 2, promtest.CollectAndCount(promReg, "finlink_adapter_connect_total"))

	h.reg.DisconnectAll(ctx)
	assert.Equal(t, 0, promtest.CollectAndCount(promReg, "finlink_adapter_health_status"))
}

func TestInstance_ReturnsSameRegistry(t *testing.T) {
	t.Parallel()

	v, err := vault.New("instance-test-secret", vault.WithIterations(1000))
	require.NoError(t, err)
	t.Cleanup(v.Close)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*registry.Registry
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := registry.Instance(v)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, results, 4)
	for _, r := range results[1:] {
		assert.Same(t, results[0], r)
	}
}
