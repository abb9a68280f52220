package fakes

import (
	"context"
	"sync"
	"time"

	"github.com/systmms/finlink/internal/connectors"
	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/pkg/connector"
)

// FakeConnector is a manual fake implementation of connector.Connector.
//
// It follows the real state machine (Connecting, Connected, FailedToConnect,
// Degraded, Disconnected) while letting tests script failures and latency.
//
// Example usage:
//
//	fake := fakes.NewFakeConnector(connector.TD).
//	    WithHealthy(false).
//	    WithDisconnectError(errors.New("socket closed"))
type FakeConnector struct {
	key   connector.ProviderKey
	creds connector.RawCredentials

	state connector.State

	connectErr    error
	disconnectErr error
	healthErr     error
	healthy       bool
	connectDelay  time.Duration
	healthDelay   time.Duration

	callCount map[string]int

	mu sync.Mutex
}

// NewFakeConnector creates a healthy fake for key.
func NewFakeConnector(key connector.ProviderKey) *FakeConnector {
	return &FakeConnector{
		key:       key,
		healthy:   true,
		callCount: make(map[string]int),
	}
}

// WithConnectError makes Connect fail with err.
func (f *FakeConnector) WithConnectError(err error) *FakeConnector {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
	return f
}

// WithDisconnectError makes Disconnect fail with err.
func (f *FakeConnector) WithDisconnectError(err error) *FakeConnector {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectErr = err
	return f
}

// WithHealthy sets the result of subsequent health probes.
func (f *FakeConnector) WithHealthy(healthy bool) *FakeConnector {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = healthy
	return f
}

// WithHealthError makes HealthCheck return err.
func (f *FakeConnector) WithHealthError(err error) *FakeConnector {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthErr = err
	return f
}

// WithConnectDelay simulates a slow session handshake.
func (f *FakeConnector) WithConnectDelay(d time.Duration) *FakeConnector {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectDelay = d
	return f
}

// WithHealthDelay simulates a slow health probe.
func (f *FakeConnector) WithHealthDelay(d time.Duration) *FakeConnector {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthDelay = d
	return f
}

// Credentials returns the credentials the fake was constructed with.
func (f *FakeConnector) Credentials() connector.RawCredentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds
}

// CallCount returns how many times method was invoked.
func (f *FakeConnector) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount[method]
}

func (f *FakeConnector) Provider() connector.ProviderKey { return f.key }

func (f *FakeConnector) State() connector.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FakeConnector) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.callCount["Connect"]++
	f.state = connector.StateConnecting
	delay, connectErr := f.connectDelay, f.connectErr
	f.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		connectErr = err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if connectErr != nil {
		f.state = connector.StateFailedToConnect
		return connector.ConnectError{Provider: f.key, Err: connectErr}
	}
	f.state = connector.StateConnected
	return nil
}

func (f *FakeConnector) Disconnect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount["Disconnect"]++
	f.state = connector.StateDisconnected
	if f.disconnectErr != nil {
		return connector.DisconnectError{Provider: f.key, Err: f.disconnectErr}
	}
	return nil
}

func (f *FakeConnector) HealthCheck(ctx context.Context) (connector.HealthStatus, error) {
	f.mu.Lock()
	f.callCount["HealthCheck"]++
	delay := f.healthDelay
	f.mu.Unlock()

	start := time.Now()
	sleepErr := sleep(ctx, delay)

	f.mu.Lock()
	defer f.mu.Unlock()

	status := connector.HealthStatus{Latency: time.Since(start), CheckedAt: time.Now()}
	if sleepErr != nil || f.healthErr != nil {
		err := f.healthErr
		if err == nil {
			err = sleepErr
		}
		f.degrade()
		status.Detail = err.Error()
		return status, connector.HealthCheckError{Provider: f.key, Err: err}
	}

	status.Healthy = f.healthy
	if f.healthy {
		if f.state == connector.StateDegraded {
			f.state = connector.StateConnected
		}
	} else {
		f.degrade()
		status.Detail = "scripted unhealthy"
	}
	return status, nil
}

func (f *FakeConnector) degrade() {
	if f.state == connector.StateConnected {
		f.state = connector.StateDegraded
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectorSet hands out FakeConnectors from a connectors.Factory and
// remembers every instance it created, in order, per provider.
type ConnectorSet struct {
	mu         sync.Mutex
	configure  map[connector.ProviderKey]func(*FakeConnector)
	created    map[connector.ProviderKey][]*FakeConnector
	factoryErr map[connector.ProviderKey]error
}

// NewConnectorSet returns an empty set.
func NewConnectorSet() *ConnectorSet {
	return &ConnectorSet{
		configure:  make(map[connector.ProviderKey]func(*FakeConnector)),
		created:    make(map[connector.ProviderKey][]*FakeConnector),
		factoryErr: make(map[connector.ProviderKey]error),
	}
}

// Configure registers a hook applied to every new fake for key. Later calls
// replace earlier hooks, so a test can change behavior between reloads.
func (s *ConnectorSet) Configure(key connector.ProviderKey, fn func(*FakeConnector)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configure[key] = fn
}

// FailConstruction makes the factory for key return err.
func (s *ConnectorSet) FailConstruction(key connector.ProviderKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factoryErr[key] = err
}

// Created returns every fake built for key.
func (s *ConnectorSet) Created(key connector.ProviderKey) []*FakeConnector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakeConnector(nil), s.created[key]...)
}

// Latest returns the most recent fake built for key, or nil.
func (s *ConnectorSet) Latest(key connector.ProviderKey) *FakeConnector {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.created[key]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// Factory builds fakes.
func (s *ConnectorSet) Factory(ep connectors.Endpoint, creds connector.RawCredentials, _ *logging.Logger) (connector.Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.factoryErr[ep.Provider]; err != nil {
		return nil, err
	}

	fake := NewFakeConnector(ep.Provider)
	fake.creds = creds
	if fn := s.configure[ep.Provider]; fn != nil {
		fn(fake)
	}
	s.created[ep.Provider] = append(s.created[ep.Provider], fake)
	return fake, nil
}

// Factories returns a connectors.Registry where the implemented keys use the
// fake factory and every other provider is pending.
func (s *ConnectorSet) Factories(implemented ...connector.ProviderKey) *connectors.Registry {
	reg := connectors.NewEmptyRegistry()
	for _, key := range connector.AllProviders() {
		reg.RegisterPending(key)
	}
	for _, key := range implemented {
		reg.RegisterFactory(key, s.Factory)
	}
	return reg
}
