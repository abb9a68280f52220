package connector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProviderKey identifies a supported financial institution.
//
// The set is closed: adding an institution means adding a constant here and
// an entry in the expected-kind table in credentials.go.
type ProviderKey string

const (
	Scotia     ProviderKey = "scotia"
	RBC        ProviderKey = "rbc"
	TD         ProviderKey = "td"
	BMO        ProviderKey = "bmo"
	CIBC       ProviderKey = "cibc"
	Desjardins ProviderKey = "desjardins"
	National   ProviderKey = "national"
)

var knownProviders = map[ProviderKey]struct{}{
	Scotia:     {},
	RBC:        {},
	TD:         {},
	BMO:        {},
	CIBC:       {},
	Desjardins: {},
	National:   {},
}

// ParseProviderKey converts a string into a ProviderKey.
//
// Matching is case-insensitive and ignores surrounding whitespace. Unknown
// names return an UnknownProviderError.
func ParseProviderKey(s string) (ProviderKey, error) {
	key := ProviderKey(strings.ToLower(strings.TrimSpace(s)))
	if !key.Valid() {
		return "", UnknownProviderError{Name: s}
	}
	return key, nil
}

// Valid reports whether k is one of the known providers.
func (k ProviderKey) Valid() bool {
	_, ok := knownProviders[k]
	return ok
}

// String implements fmt.Stringer.
func (k ProviderKey) String() string {
	return string(k)
}

// AllProviders returns every known provider in sorted order.
func AllProviders() []ProviderKey {
	keys := make([]ProviderKey, 0, len(knownProviders))
	for k := range knownProviders {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// SortKeys sorts provider keys in place, lexically.
func SortKeys(keys []ProviderKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}

// State is the lifecycle position of a connector instance.
//
//	Uninitialized → Connecting → Connected | FailedToConnect
//	Connected → Disconnected          (explicit)
//	Connected → Degraded              (failed health check, session retained)
//	Degraded  → Connected             (later health check succeeds)
//
// Disconnected and FailedToConnect are terminal.
type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateConnected
	StateFailedToConnect
	StateDegraded
	StateDisconnected
)

// String returns the lowercase state name used in logs and API responses.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailedToConnect:
		return "failed_to_connect"
	case StateDegraded:
		return "degraded"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateFailedToConnect
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for candidate := StateUninitialized; candidate <= StateDisconnected; candidate++ {
		if candidate.String() == string(b) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown connector state %q", string(b))
}

// HealthStatus is the result of a single health probe.
type HealthStatus struct {
	// Healthy is true when the provider answered the probe successfully.
	Healthy bool `json:"healthy"`

	// Latency is how long the probe took. Zero when unknown.
	Latency time.Duration `json:"latency_ns,omitempty"`

	// Detail carries a short human-readable reason, typically set on failure.
	Detail string `json:"detail,omitempty"`

	// CheckedAt is when the probe completed.
	CheckedAt time.Time `json:"checked_at"`
}

// Connector owns a live or potential session with one provider.
//
// Implementations enforce their own per-operation timeout so that one slow
// provider cannot stall callers fanning out across many connectors. All
// methods must be safe for concurrent use.
//
// Example usage:
//
//	conn, err := factory(endpoint, creds)
//	if err != nil {
//	    return err
//	}
//	if err := conn.Connect(ctx); err != nil {
//	    return fmt.Errorf("connect %s: %w", conn.Provider(), err)
//	}
//	defer conn.Disconnect(ctx)
type Connector interface {
	// Provider returns the institution this connector talks to.
	Provider() ProviderKey

	// State returns the current lifecycle state.
	State() State

	// Connect establishes the provider session. A failure moves the
	// connector to StateFailedToConnect and returns a ConnectError.
	Connect(ctx context.Context) error

	// Disconnect releases the session. It is idempotent.
	Disconnect(ctx context.Context) error

	// HealthCheck probes the session. A failed probe on a connected
	// connector moves it to StateDegraded but keeps the session.
	HealthCheck(ctx context.Context) (HealthStatus, error)
}
