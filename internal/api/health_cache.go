package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/systmms/finlink/internal/health"
	"github.com/systmms/finlink/pkg/connector"
)

// DefaultHealthCacheTTL bounds how often unauthenticated /v1/health requests
// can trigger live provider probes when no monitor is running.
const DefaultHealthCacheTTL = 5 * time.Second

// providerView is one provider's state as reported by /v1/health.
type providerView struct {
	status  string // healthy, unhealthy or unknown
	latency time.Duration
	detail  string
}

// healthCache serves health snapshots. A running monitor is the source when
// it has observed at least one round; otherwise live reports are cached for
// ttl and concurrent misses share one probe.
type healthCache struct {
	registry Registry
	monitor  *health.Monitor
	ttl      time.Duration
	now      func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	fetched time.Time
	report  map[connector.ProviderKey]connector.HealthStatus
}

func (c *healthCache) snapshot(ctx context.Context) map[connector.ProviderKey]providerView {
	if c.monitor != nil && c.monitor.Running() {
		if statuses := c.monitor.Statuses(); len(statuses) > 0 {
			return fromMonitor(statuses)
		}
	}
	return fromReport(c.cachedReport(ctx))
}

func (c *healthCache) cachedReport(ctx context.Context) map[connector.ProviderKey]connector.HealthStatus {
	c.mu.Lock()
	if c.report != nil && c.now().Sub(c.fetched) < c.ttl {
		report := c.report
		c.mu.Unlock()
		return report
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do("health", func() (interface{}, error) {
		// Detached so one caller hanging up does not fail the shared probe.
		report := c.registry.HealthReport(context.WithoutCancel(ctx))
		c.mu.Lock()
		c.report, c.fetched = report, c.now()
		c.mu.Unlock()
		return report, nil
	})
	return v.(map[connector.ProviderKey]connector.HealthStatus)
}

func fromReport(report map[connector.ProviderKey]connector.HealthStatus) map[connector.ProviderKey]providerView {
	out := make(map[connector.ProviderKey]providerView, len(report))
	for key, st := range report {
		view := providerView{status: "healthy", latency: st.Latency}
		if !st.Healthy {
			view.status = "unhealthy"
			view.detail = st.Detail
		}
		out[key] = view
	}
	return out
}

func fromMonitor(statuses map[connector.ProviderKey]health.ProviderStatus) map[connector.ProviderKey]providerView {
	out := make(map[connector.ProviderKey]providerView, len(statuses))
	for key, st := range statuses {
		view := providerView{status: string(st.Status), latency: st.Latency}
		if st.Status == health.StatusUnhealthy {
			view.detail = st.Detail
		}
		out[key] = view
	}
	return out
}
