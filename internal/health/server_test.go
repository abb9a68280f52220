package health

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/finlink/internal/logging"
)

func newGathererWithCounter(t *testing.T) *prometheus.Registry {
	t.Helper()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "finlink_test_events_total",
		Help: "Test counter",
	})
	reg.MustRegister(counter)
	counter.Add(3)
	return reg
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	MetricsHandler(newGathererWithCounter(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "finlink_test_events_total 3")
}

func TestMetricsServer_StartStop(t *testing.T) {
	t.Parallel()

	srv := NewMetricsServer(MetricsServerConfig{
		Addr:     "127.0.0.1:0",
		Gatherer: newGathererWithCounter(t),
	}, logging.Nop())

	assert.Empty(t, srv.Addr())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	addr := srv.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "finlink_test_events_total 3")

	resp, err = http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
	assert.Empty(t, srv.Addr())
	require.NoError(t, srv.Stop(context.Background()))
}

func TestMetricsServer_BindError(t *testing.T) {
	t.Parallel()

	srv := NewMetricsServer(MetricsServerConfig{Addr: "256.0.0.1:bad"}, logging.Nop())
	assert.Error(t, srv.Start())
}
