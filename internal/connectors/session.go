package connectors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/pkg/connector"
	"golang.org/x/time/rate"
)

// StatusPath is probed by Connect and HealthCheck on every variant.
const StatusPath = "/v1/status"

const maxBodyBytes = 1 << 20

// StatusError reports an unexpected HTTP status from a provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("unexpected status %d %s", e.Code, strings.ToLower(http.StatusText(e.Code)))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// session holds the state and HTTP plumbing shared by every variant.
type session struct {
	ep      Endpoint
	logger  *logging.Logger
	client  *http.Client
	limiter *rate.Limiter
	backoff time.Duration

	mu    sync.RWMutex
	state connector.State
}

func newSession(ep Endpoint, logger *logging.Logger, client *http.Client) *session {
	if client == nil {
		client = &http.Client{Timeout: ep.Timeout}
	}
	s := &session{
		ep:      ep,
		logger:  logger,
		client:  client,
		backoff: 200 * time.Millisecond,
	}
	if ep.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(ep.RateLimit), ep.RateBurst)
	}
	return s
}

func (s *session) Provider() connector.ProviderKey { return s.ep.Provider }

func (s *session) State() connector.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *session) setState(st connector.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// beginConnect moves to Connecting unless the connector is terminal. A
// failed connector is replaced, not reconnected.
func (s *session) beginConnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return connector.ConnectError{Provider: s.ep.Provider, Err: fmt.Errorf("connector is %s", s.state)}
	}
	s.state = connector.StateConnecting
	return nil
}

// finishConnect records the outcome of Connect and logs it.
func (s *session) finishConnect(start time.Time, err error) error {
	duration := time.Since(start)
	if err != nil {
		s.setState(connector.StateFailedToConnect)
		s.logger.Zerolog().Warn().Dur("duration", duration).Bool("success", false).Err(err).Msg("connect failed")
		var connErr connector.ConnectError
		if errors.As(err, &connErr) {
			return err
		}
		return connector.ConnectError{Provider: s.ep.Provider, Err: err}
	}
	s.setState(connector.StateConnected)
	s.logger.Zerolog().Info().Dur("duration", duration).Bool("success", true).Msg("connected")
	return nil
}

// recordHealth applies the Connected/Degraded transition for a probe result.
func (s *session) recordHealth(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case healthy && s.state == connector.StateDegraded:
		s.state = connector.StateConnected
	case !healthy && s.state == connector.StateConnected:
		s.state = connector.StateDegraded
	}
}

// requireSession fails fast when there is no live session to probe.
func (s *session) requireSession() error {
	switch st := s.State(); st {
	case connector.StateConnected, connector.StateDegraded:
		return nil
	default:
		return fmt.Errorf("no active session (state %s)", st)
	}
}

// do sends the request produced by build, retrying transient failures up to
// RetryAttempts times in total. Each attempt is bounded by Endpoint.Timeout.
// A non-2xx status is returned as *StatusError. Only idempotent requests go
// through do; use doOnce for the rest.
func (s *session) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	return s.doAttempts(ctx, s.ep.RetryAttempts, build)
}

// doOnce sends a non-idempotent request exactly once.
func (s *session) doOnce(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	return s.doAttempts(ctx, 1, build)
}

func (s *session) doAttempts(ctx context.Context, attempts int, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := wait(ctx, s.backoff*time.Duration(1<<(attempt-2))); err != nil {
				return nil, err
			}
		}

		body, err := s.attempt(ctx, build)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			return nil, err
		}
		s.logger.Debug("attempt %d/%d failed: %v", attempt, attempts, err)
	}
	return nil, lastErr
}

func (s *session) attempt(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ep.Timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := build(ctx)
	if err != nil {
		return nil, err
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}
	req.Header.Set("Accept", "application/json")

	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// probe issues GET {base}/v1/status and converts the outcome into a
// HealthStatus. decorate adds authentication to the request.
func (s *session) probe(ctx context.Context, decorate func(*http.Request) error) (connector.HealthStatus, error) {
	start := time.Now()
	_, err := s.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ep.BaseURL+StatusPath, nil)
		if err != nil {
			return nil, err
		}
		if decorate != nil {
			if err := decorate(req); err != nil {
				return nil, err
			}
		}
		return req, nil
	})

	status := connector.HealthStatus{
		Healthy:   err == nil,
		Latency:   time.Since(start),
		CheckedAt: time.Now(),
	}
	if err != nil {
		status.Detail = err.Error()
	}
	return status, err
}

// healthCheck is the HealthCheck implementation shared by the variants.
func (s *session) healthCheck(ctx context.Context, decorate func(*http.Request) error) (connector.HealthStatus, error) {
	if err := s.requireSession(); err != nil {
		return connector.HealthStatus{Detail: err.Error(), CheckedAt: time.Now()},
			connector.HealthCheckError{Provider: s.ep.Provider, Err: err}
	}

	status, err := s.probe(ctx, decorate)
	s.recordHealth(status.Healthy)
	s.logger.Zerolog().Debug().
		Dur("duration", status.Latency).
		Bool("success", status.Healthy).
		Msg("health check")
	if err != nil {
		return status, connector.HealthCheckError{Provider: s.ep.Provider, Err: err}
	}
	return status, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}
	return dserrors.IsRetryable(err)
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
