package connectors

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/pkg/connector"
)

// SessionPath is where BMO sessions are opened and closed.
const SessionPath = "/v1/sessions"

const defaultSessionTTL = 15 * time.Minute

// BMO authenticates with an API key and opens an HMAC-signed session whose
// token is cached until shortly before it expires.
type BMO struct {
	*session

	creds   connector.APIKeyCredentials
	cache   *TokenCache
	nowFunc func() time.Time
}

type sessionResponse struct {
	SessionToken string `json:"session_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// NewBMOFactory builds a BMO connector. It is a Factory.
func NewBMOFactory(ep Endpoint, creds connector.RawCredentials, logger *logging.Logger) (connector.Connector, error) {
	return NewBMO(ep, creds, logger, nil)
}

// NewBMO builds a BMO connector using client for HTTP traffic.
func NewBMO(ep Endpoint, creds connector.RawCredentials, logger *logging.Logger, client *http.Client) (*BMO, error) {
	apiCreds, ok := creds.(connector.APIKeyCredentials)
	if !ok {
		return nil, connector.KindMismatchError{Provider: ep.Provider, Want: connector.KindAPIKey, Got: kindOf(creds)}
	}
	return &BMO{
		session: newSession(ep, logger, client),
		creds:   apiCreds,
		cache:   NewTokenCache(),
		nowFunc: time.Now,
	}, nil
}

// Connect opens a session and probes the status endpoint with it.
func (b *BMO) Connect(ctx context.Context) error {
	if err := b.beginConnect(); err != nil {
		return err
	}
	start := time.Now()

	if err := b.openSession(ctx); err != nil {
		return b.finishConnect(start, err)
	}
	if _, err := b.probe(ctx, b.authorize); err != nil {
		if closeErr := b.closeSession(ctx); closeErr != nil {
			b.logger.Warn("failed to close bmo session after failed connect: %v", closeErr)
		}
		return b.finishConnect(start, err)
	}
	return b.finishConnect(start, nil)
}

// Disconnect closes the provider session. The connector ends Disconnected
// even when the close request fails.
func (b *BMO) Disconnect(ctx context.Context) error {
	b.setState(connector.StateDisconnected)
	if err := b.closeSession(ctx); err != nil {
		return connector.DisconnectError{Provider: b.ep.Provider, Err: err}
	}
	return nil
}

// closeSession drops the cached token and deletes the session it names.
func (b *BMO) closeSession(ctx context.Context) error {
	token := b.cache.Clear()
	if token == "" {
		return nil
	}

	_, err := b.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, b.ep.BaseURL+SessionPath, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-API-Key", b.creds.APIKey)
		return req, nil
	})
	return err
}

// HealthCheck probes the status endpoint, reopening the session first when
// the cached token has expired.
func (b *BMO) HealthCheck(ctx context.Context) (connector.HealthStatus, error) {
	if err := b.requireSession(); err == nil {
		if _, ok := b.cache.Get(); !ok {
			if err := b.openSession(ctx); err != nil {
				b.recordHealth(false)
				return connector.HealthStatus{Detail: err.Error(), CheckedAt: time.Now()},
					connector.HealthCheckError{Provider: b.ep.Provider, Err: err}
			}
		}
	}
	return b.healthCheck(ctx, b.authorize)
}

func (b *BMO) openSession(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{"api_key": b.creds.APIKey})
	if err != nil {
		return err
	}

	// Session creation is not idempotent; it is sent once.
	body, err := b.doOnce(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.ep.BaseURL+SessionPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		timestamp := strconv.FormatInt(b.nowFunc().Unix(), 10)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", b.creds.APIKey)
		req.Header.Set("X-Timestamp", timestamp)
		req.Header.Set("X-Signature", Sign(b.creds.APISecret, http.MethodPost, SessionPath, timestamp, payload))
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode session response: %w", err)
	}
	if resp.SessionToken == "" {
		return errors.New("session response carried no token")
	}

	ttl := defaultSessionTTL
	if resp.ExpiresIn > 0 {
		ttl = time.Duration(resp.ExpiresIn) * time.Second
	}
	b.cache.Set(resp.SessionToken, ttl)
	return nil
}

func (b *BMO) authorize(req *http.Request) error {
	token, ok := b.cache.Get()
	if !ok {
		return errors.New("session expired")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-API-Key", b.creds.APIKey)
	return nil
}

// Sign computes the hex HMAC-SHA256 request signature over
// method, path, timestamp and body, newline separated.
func Sign(secret, method, path, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method + "\n" + path + "\n" + timestamp + "\n"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
