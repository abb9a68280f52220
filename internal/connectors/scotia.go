package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/systmms/finlink/internal/logging"
	"github.com/systmms/finlink/pkg/connector"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Scotia authenticates with an OAuth2 client-credentials grant. Outbound
// calls share one rate limiter.
type Scotia struct {
	*session

	oauth *clientcredentials.Config

	tokenMu sync.Mutex
	tokens  oauth2.TokenSource
}

// NewScotiaFactory builds a Scotia connector. It is a Factory.
func NewScotiaFactory(ep Endpoint, creds connector.RawCredentials, logger *logging.Logger) (connector.Connector, error) {
	return NewScotia(ep, creds, logger, nil)
}

// NewScotia builds a Scotia connector using client for all HTTP traffic,
// including the token exchange. A nil client uses a default one.
func NewScotia(ep Endpoint, creds connector.RawCredentials, logger *logging.Logger, client *http.Client) (*Scotia, error) {
	oauthCreds, ok := creds.(connector.OAuthClientCredentials)
	if !ok {
		return nil, connector.KindMismatchError{Provider: ep.Provider, Want: connector.KindOAuth2, Got: kindOf(creds)}
	}

	tokenURL := oauthCreds.TokenURL
	if tokenURL == "" {
		tokenURL = ep.TokenURL
	}
	if tokenURL == "" {
		return nil, connector.ValidationError{Kind: connector.KindOAuth2, Field: "token_url", Message: "is required"}
	}

	return &Scotia{
		session: newSession(ep, logger, client),
		oauth: &clientcredentials.Config{
			ClientID:     oauthCreds.ClientID,
			ClientSecret: oauthCreds.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       oauthCreds.Scopes,
		},
	}, nil
}

// Connect obtains an access token and probes the status endpoint with it.
func (s *Scotia) Connect(ctx context.Context) error {
	if err := s.beginConnect(); err != nil {
		return err
	}
	start := time.Now()

	ts := s.oauth.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, s.client))

	tokenCtx, cancel := context.WithTimeout(ctx, s.ep.Timeout)
	defer cancel()
	if _, err := tokenWithContext(tokenCtx, ts); err != nil {
		return s.finishConnect(start, fmt.Errorf("token exchange: %w", err))
	}

	s.tokenMu.Lock()
	s.tokens = ts
	s.tokenMu.Unlock()

	if _, err := s.probe(ctx, s.authorize); err != nil {
		s.clearTokens()
		return s.finishConnect(start, err)
	}
	return s.finishConnect(start, nil)
}

// Disconnect drops the token source. It is idempotent.
func (s *Scotia) Disconnect(_ context.Context) error {
	s.clearTokens()
	s.setState(connector.StateDisconnected)
	return nil
}

// HealthCheck probes the status endpoint, refreshing the token if needed.
func (s *Scotia) HealthCheck(ctx context.Context) (connector.HealthStatus, error) {
	return s.healthCheck(ctx, s.authorize)
}

func (s *Scotia) authorize(req *http.Request) error {
	s.tokenMu.Lock()
	ts := s.tokens
	s.tokenMu.Unlock()
	if ts == nil {
		return errors.New("no token source")
	}

	tok, err := tokenWithContext(req.Context(), ts)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

func (s *Scotia) clearTokens() {
	s.tokenMu.Lock()
	s.tokens = nil
	s.tokenMu.Unlock()
}

// tokenWithContext bounds a TokenSource call, which takes no context, by ctx.
func tokenWithContext(ctx context.Context, ts oauth2.TokenSource) (*oauth2.Token, error) {
	type result struct {
		tok *oauth2.Token
		err error
	}
	ch := make(chan result, 1)
	go func() {
		tok, err := ts.Token()
		ch <- result{tok, err}
	}()
	select {
	case r := <-ch:
		return r.tok, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func kindOf(creds connector.RawCredentials) connector.Kind {
	if creds == nil {
		return ""
	}
	return creds.Kind()
}
