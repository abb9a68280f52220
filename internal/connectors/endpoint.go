package connectors

import (
	"time"

	"github.com/systmms/finlink/internal/config"
	"github.com/systmms/finlink/pkg/connector"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultRateLimit     = 10.0
	DefaultRateBurst     = 5
)

// Endpoint describes where and how to reach one institution.
type Endpoint struct {
	Provider      connector.ProviderKey
	BaseURL       string
	TokenURL      string
	Auth          connector.Kind
	Timeout       time.Duration
	RetryAttempts int

	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
}

var defaultEndpoints = map[connector.ProviderKey]Endpoint{
	connector.Scotia: {
		BaseURL:   "https://api.scotiabank.com",
		TokenURL:  "https://api.scotiabank.com/oauth2/v1/token",
		RateLimit: DefaultRateLimit,
		RateBurst: DefaultRateBurst,
	},
	connector.RBC:        {BaseURL: "https://api.rbc.com"},
	connector.TD:         {BaseURL: "https://api.td.com"},
	connector.BMO:        {BaseURL: "https://api.bmo.com"},
	connector.CIBC:       {BaseURL: "https://api.cibc.com", TokenURL: "https://api.cibc.com/oauth2/token"},
	connector.Desjardins: {BaseURL: "https://api.desjardins.com"},
	connector.National:   {BaseURL: "https://api.nbc.ca"},
}

// DefaultEndpoint returns the built-in endpoint for key with defaults applied.
func DefaultEndpoint(key connector.ProviderKey) Endpoint {
	ep := defaultEndpoints[key]
	ep.Provider = key
	return ep.withDefaults()
}

func (e Endpoint) withDefaults() Endpoint {
	if e.Timeout <= 0 {
		e.Timeout = DefaultTimeout
	}
	if e.RetryAttempts <= 0 {
		e.RetryAttempts = DefaultRetryAttempts
	}
	if e.Auth == "" {
		e.Auth, _ = connector.ExpectedKind(e.Provider)
	}
	if e.RateLimit > 0 && e.RateBurst <= 0 {
		e.RateBurst = 1
	}
	return e
}

// Override applies the non-zero fields of an EndpointConfig.
func (e Endpoint) Override(o config.EndpointConfig) Endpoint {
	if o.BaseURL != "" {
		e.BaseURL = o.BaseURL
	}
	if o.TokenURL != "" {
		e.TokenURL = o.TokenURL
	}
	if t := o.Timeout(); t > 0 {
		e.Timeout = t
	}
	if o.RetryAttempts > 0 {
		e.RetryAttempts = o.RetryAttempts
	}
	if o.RateLimit > 0 {
		e.RateLimit = o.RateLimit
	}
	if o.RateBurst > 0 {
		e.RateBurst = o.RateBurst
	}
	return e.withDefaults()
}
