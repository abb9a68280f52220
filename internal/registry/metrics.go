package registry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/systmms/finlink/pkg/connector"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Metrics records adapter lifecycle metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	connectTotal        *prometheus.CounterVec
	reloadTotal         *prometheus.CounterVec
	healthStatus        *prometheus.GaugeVec
	healthCheckDuration *prometheus.HistogramVec
	adaptersLive        prometheus.Gauge
}

// NewMetrics registers the adapter metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		connectTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finlink_adapter_connect_total",
				Help: "Total number of adapter connect attempts",
			},
			[]string{"provider", "result"},
		),
		reloadTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finlink_adapter_reload_total",
				Help: "Total number of adapter reloads",
			},
			[]string{"provider", "result"},
		),
		healthStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finlink_adapter_health_status",
				Help: "Last health check result per adapter (1=healthy, 0=unhealthy)",
			},
			[]string{"provider"},
		),
		healthCheckDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finlink_adapter_health_check_duration_seconds",
				Help:    "Duration of adapter health checks in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"provider"},
		),
		adaptersLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "finlink_adapters_live",
				Help: "Number of connected adapters in the registry",
			},
		),
	}
}

// DefaultMetrics returns metrics registered with the default Prometheus
// registerer. Registration happens once per process.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func (m *Metrics) recordConnect(provider connector.ProviderKey, err error) {
	if m == nil {
		return
	}
	m.connectTotal.WithLabelValues(string(provider), result(err)).Inc()
}

func (m *Metrics) recordReload(provider connector.ProviderKey, err error) {
	if m == nil {
		return
	}
	m.reloadTotal.WithLabelValues(string(provider), result(err)).Inc()
}

func (m *Metrics) recordHealth(provider connector.ProviderKey, healthy bool, d time.Duration) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.healthStatus.WithLabelValues(string(provider)).Set(v)
	m.healthCheckDuration.WithLabelValues(string(provider)).Observe(d.Seconds())
}

func (m *Metrics) setLive(n int) {
	if m == nil {
		return
	}
	m.adaptersLive.Set(float64(n))
}

func (m *Metrics) forget(provider connector.ProviderKey) {
	if m == nil {
		return
	}
	m.healthStatus.DeleteLabelValues(string(provider))
}

func result(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}
