// Package health watches live adapters and reloads the ones that stay
// unhealthy.
//
// A Monitor polls the registry's health report on a fixed interval and counts
// consecutive failures per provider. When a provider reaches the failure
// threshold and auto reload is enabled, the monitor asks its ReloadTrigger to
// rebuild that adapter and starts counting again.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/pkg/connector"
)

// Status summarizes the last observed health of an adapter.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// ErrAlreadyRunning is returned by Start on a running monitor.
var ErrAlreadyRunning = errors.New("health monitor already running")

// Reporter produces a health snapshot of every live adapter.
type Reporter interface {
	HealthReport(ctx context.Context) map[connector.ProviderKey]connector.HealthStatus
}

// ReloadTrigger rebuilds an adapter that failed too many checks.
type ReloadTrigger interface {
	ReloadAdapter(ctx context.Context, key connector.ProviderKey) error
}

// MonitorConfig holds configuration for the health monitor.
type MonitorConfig struct {
	// Interval is how often health checks are performed.
	// Default: 30 seconds
	Interval time.Duration

	// FailureThreshold is the number of consecutive failures before a
	// reload is triggered.
	// Default: 3
	FailureThreshold int

	// AutoReload enables the reload trigger.
	AutoReload bool
}

// DefaultMonitorConfig returns the default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:         30 * time.Second,
		FailureThreshold: 3,
	}
}

// ProviderStatus is what the monitor knows about one provider.
type ProviderStatus struct {
	Provider         connector.ProviderKey `json:"provider"`
	Status           Status                `json:"status"`
	ConsecutiveFails int                   `json:"consecutive_failures"`
	Detail           string                `json:"detail,omitempty"`
	Latency          time.Duration         `json:"latency_ns,omitempty"`
	LastCheck        time.Time             `json:"last_check"`
	Reloads          int                   `json:"reloads"`
}

// Monitor runs periodic health checks against a Reporter.
type Monitor struct {
	config   MonitorConfig
	reporter Reporter
	trigger  ReloadTrigger
	logger   *logging.Logger
	metrics  *Metrics

	mu     sync.RWMutex
	states map[connector.ProviderKey]*ProviderStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithReloadTrigger sets the trigger used when AutoReload is on.
func WithReloadTrigger(t ReloadTrigger) Option {
	return func(m *Monitor) { m.trigger = t }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithMetrics records monitor metrics. Nil disables them.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// NewMonitor creates a monitor. Zero config fields take their defaults.
func NewMonitor(reporter Reporter, config MonitorConfig, opts ...Option) *Monitor {
	defaults := DefaultMonitorConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}

	m := &Monitor{
		config:   config,
		reporter: reporter,
		states:   make(map[connector.ProviderKey]*ProviderStatus),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs an immediate check and then one per interval until ctx is
// canceled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(runCtx, m.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight round to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancel != nil
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.release(done)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.CheckNow(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// release clears the running state when the loop exits on its own, so a
// canceled parent context does not leave the monitor marked running.
func (m *Monitor) release(done chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != done {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel, m.done = nil, nil
}

// CheckNow runs one round of checks synchronously and applies the reload
// policy.
func (m *Monitor) CheckNow(ctx context.Context) {
	report := m.reporter.HealthReport(ctx)
	now := time.Now()

	var reload []connector.ProviderKey

	m.mu.Lock()
	for key := range m.states {
		if _, ok := report[key]; !ok {
			delete(m.states, key)
		}
	}
	for key, hs := range report {
		state, ok := m.states[key]
		if !ok {
			state = &ProviderStatus{Provider: key}
			m.states[key] = state
		}
		state.LastCheck = now
		state.Latency = hs.Latency
		state.Detail = hs.Detail

		if hs.Healthy {
			state.Status = StatusHealthy
			state.ConsecutiveFails = 0
			continue
		}
		state.Status = StatusUnhealthy
		state.ConsecutiveFails++
		if state.ConsecutiveFails >= m.config.FailureThreshold && m.config.AutoReload && m.trigger != nil {
			reload = append(reload, key)
		}
	}
	m.mu.Unlock()

	connector.SortKeys(reload)
	for _, key := range reload {
		m.reload(ctx, key)
	}
}

func (m *Monitor) reload(ctx context.Context, key connector.ProviderKey) {
	m.logger.Warn("%s adapter failed %d consecutive health checks, reloading", key, m.config.FailureThreshold)

	err := m.trigger.ReloadAdapter(ctx, key)
	m.metrics.recordReload(key, err)
	if err != nil {
		m.logger.Error("health-triggered reload of %s failed: %v", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.states[key]; ok {
		state.ConsecutiveFails = 0
		if err == nil {
			state.Reloads++
			state.Status = StatusUnknown
		}
	}
}

// Statuses returns a copy of the last observed status of every provider.
func (m *Monitor) Statuses() map[connector.ProviderKey]ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[connector.ProviderKey]ProviderStatus, len(m.states))
	for k, v := range m.states {
		out[k] = *v
	}
	return out
}

// Status returns the last observed status of key.
func (m *Monitor) Status(key connector.ProviderKey) ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.states[key]; ok {
		return *state
	}
	return ProviderStatus{Provider: key, Status: StatusUnknown}
}
