package health

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/systmms/finlink/pkg/connector"
)

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Metrics records monitor activity. A nil *Metrics records nothing.
type Metrics struct {
	reloadTriggered *prometheus.CounterVec
}

// NewMetrics registers the monitor metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		reloadTriggered: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "finlink_health_reload_triggered_total",
				Help: "Total number of reloads triggered by consecutive health check failures",
			},
			[]string{"provider", "result"},
		),
	}
}

// DefaultMetrics returns metrics registered once with the default
// Prometheus registerer.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func (m *Metrics) recordReload(provider connector.ProviderKey, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.reloadTriggered.WithLabelValues(string(provider), result).Inc()
}
