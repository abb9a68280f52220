package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/systmms/finlink/internal/health"
	"github.com/systmms/finlink/internal/registry"
	"github.com/systmms/finlink/pkg/connector"
)

type HealthResponse struct {
	Status    string           `json:"status"`
	Providers []ProviderHealth `json:"providers"`
	Uptime    int64            `json:"uptime_seconds"`
}

type ProviderHealth struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

type AdapterResponse struct {
	registry.AdapterStatus
	Health *health.ProviderStatus `json:"health,omitempty"`
}

type reloadResponse struct {
	Provider connector.ProviderKey `json:"provider"`
	Status   string                `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.health.snapshot(r.Context())

	keys := make([]connector.ProviderKey, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	connector.SortKeys(keys)

	resp := HealthResponse{
		Status:    "ok",
		Providers: make([]ProviderHealth, 0, len(keys)),
		Uptime:    int64(time.Since(s.started).Seconds()),
	}
	code := http.StatusOK
	for _, key := range keys {
		view := snapshot[key]
		resp.Providers = append(resp.Providers, ProviderHealth{
			Name:      string(key),
			Status:    view.status,
			LatencyMs: view.latency.Milliseconds(),
			Error:     view.detail,
		})
		// Unknown means not yet checked, which is not a failure.
		if view.status == "unhealthy" {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, resp)
}

func (s *Server) handleAdapters(w http.ResponseWriter, _ *http.Request) {
	statuses := s.registry.Status()

	var monitored map[connector.ProviderKey]health.ProviderStatus
	if s.monitor != nil {
		monitored = s.monitor.Statuses()
	}

	out := make([]AdapterResponse, 0, len(statuses))
	for _, st := range statuses {
		ar := AdapterResponse{AdapterStatus: st}
		if hs, ok := monitored[st.Provider]; ok {
			hs := hs
			ar.Health = &hs
		}
		out = append(out, ar)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	key, err := connector.ParseProviderKey(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.registry.ReloadAdapter(r.Context(), key); err != nil {
		s.logger.Zerolog().Warn().Err(err).Str("provider", string(key)).Msg("reload via API failed")
		writeError(w, reloadStatus(err), err.Error())
		return
	}

	s.logger.Zerolog().Info().Str("provider", string(key)).Msg("adapter reloaded via API")
	writeJSON(w, http.StatusOK, reloadResponse{Provider: key, Status: "reloaded"})
}

func reloadStatus(err error) int {
	var (
		credsMissing *registry.CredentialsNotFoundError
		reloadErr    *registry.ReloadError
	)
	switch {
	case errors.As(err, &credsMissing):
		return http.StatusNotFound
	case errors.Is(err, connector.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, registry.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.As(err, &reloadErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
