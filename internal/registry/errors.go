package registry

import (
	"errors"
	"fmt"

	"github.com/systmms/finlink/pkg/connector"
)

// ErrNotInitialized is returned by lookups before a successful Initialize.
var ErrNotInitialized = errors.New("adapter registry not initialized")

// ErrClosed is returned after DisconnectAll. It matches ErrNotInitialized so
// callers that only distinguish "no registry" from "no adapter" keep working.
var ErrClosed = fmt.Errorf("adapter registry closed: %w", ErrNotInitialized)

// InitError reports the connect failure that aborted Initialize.
type InitError struct {
	Provider connector.ProviderKey
	Err      error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("adapter registry initialization failed: %s: %v", e.Provider, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// AdapterNotFoundError means the registry is live but has no connector for
// the provider, either because it was never credentialed or because its
// connector is pending implementation.
type AdapterNotFoundError struct {
	Provider connector.ProviderKey
}

func (e *AdapterNotFoundError) Error() string {
	return fmt.Sprintf("no adapter registered for %s", e.Provider)
}

// CredentialsNotFoundError means no sealed credentials exist for a provider,
// neither in memory nor in the credential store.
type CredentialsNotFoundError struct {
	Provider connector.ProviderKey
}

func (e *CredentialsNotFoundError) Error() string {
	return fmt.Sprintf("no stored credentials for %s", e.Provider)
}

// ReloadError wraps a failed reload. The previously installed adapter, if
// any, is still live when this is returned.
type ReloadError struct {
	Provider connector.ProviderKey
	Err      error
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("reload %s adapter: %v", e.Provider, e.Err)
}

func (e *ReloadError) Unwrap() error { return e.Err }
