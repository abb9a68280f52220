// Package api exposes the adapter registry over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/systmms/finlink/internal/config"
	"github.com/systmms/finlink/internal/health"
	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/internal/registry"
	"github.com/systmms/finlink/pkg/connector"
)

const shutdownTimeout = 10 * time.Second

// Registry is the slice of *registry.Registry the API needs.
type Registry interface {
	HealthReport(ctx context.Context) map[connector.ProviderKey]connector.HealthStatus
	Status() []registry.AdapterStatus
	ReloadAdapter(ctx context.Context, key connector.ProviderKey) error
}

type Server struct {
	cfg      config.ServerConfig
	registry Registry
	monitor  *health.Monitor
	gatherer prometheus.Gatherer
	logger   *logging.Logger
	router   *chi.Mux
	started  time.Time

	healthTTL time.Duration
	health    *healthCache
}

// Option configures a Server.
type Option func(*Server)

// WithMonitor adds monitor state to the adapter listing.
func WithMonitor(m *health.Monitor) Option {
	return func(s *Server) { s.monitor = m }
}

// WithGatherer sets the metrics source for /metrics. Nil disables the route.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithHealthCacheTTL sets how long a live /v1/health report is reused when
// no monitor is running. Defaults to DefaultHealthCacheTTL.
func WithHealthCacheTTL(d time.Duration) Option {
	return func(s *Server) { s.healthTTL = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func NewServer(cfg config.ServerConfig, reg Registry, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		registry: reg,
		gatherer:  prometheus.DefaultGatherer,
		started:   time.Now(),
		healthTTL: DefaultHealthCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.health = &healthCache{registry: reg, monitor: s.monitor, ttl: s.healthTTL, now: time.Now}

	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.accessLog)
	s.mountRoutes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) mountRoutes() {
	// Public
	s.router.Get("/v1/health", s.handleHealth)
	if s.gatherer != nil {
		s.router.Method(http.MethodGet, "/metrics", health.MetricsHandler(s.gatherer))
	}

	// Protected
	s.router.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Get("/v1/adapters", s.handleAdapters)
		r.Post("/v1/adapters/{provider}/reload", s.handleReload)
	})
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout(),
		WriteTimeout: s.cfg.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Zerolog().Info().Str("addr", ln.Addr().String()).Msg("finlink listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
