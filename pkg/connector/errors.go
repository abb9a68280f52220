package connector

import (
	"errors"
	"fmt"
)

// ErrNotImplemented is matched by every NotImplementedError.
var ErrNotImplemented = errors.New("connector not implemented")

// NotImplementedError indicates that a provider is known but has no
// connector variant yet.
//
// Factories for pending providers return this error at construction, so a
// pending provider can never be mistaken for a silently inert connector.
//
// Example:
//
//	if errors.Is(err, connector.ErrNotImplemented) {
//	    logger.Warn("%s connector pending implementation", key)
//	}
type NotImplementedError struct {
	Provider ProviderKey
}

// Error implements the error interface.
func (e NotImplementedError) Error() string {
	return "connector not implemented for " + string(e.Provider)
}

// Is reports whether target is ErrNotImplemented.
func (e NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}

// ConnectError wraps a failure to establish a provider session.
type ConnectError struct {
	Provider ProviderKey
	Err      error
}

// Error implements the error interface.
func (e ConnectError) Error() string {
	return fmt.Sprintf("connect to %s failed: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying transport error.
func (e ConnectError) Unwrap() error { return e.Err }

// DisconnectError wraps a failure to release a provider session.
type DisconnectError struct {
	Provider ProviderKey
	Err      error
}

// Error implements the error interface.
func (e DisconnectError) Error() string {
	return fmt.Sprintf("disconnect from %s failed: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e DisconnectError) Unwrap() error { return e.Err }

// HealthCheckError wraps a failed health probe.
//
// The registry downgrades this error to an unhealthy result and never
// returns it from an aggregate health check.
type HealthCheckError struct {
	Provider ProviderKey
	Err      error
}

// Error implements the error interface.
func (e HealthCheckError) Error() string {
	return fmt.Sprintf("health check for %s failed: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e HealthCheckError) Unwrap() error { return e.Err }

// UnknownProviderError is returned when a name is not a known ProviderKey.
type UnknownProviderError struct {
	Name string
}

// Error implements the error interface.
func (e UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Name)
}

// KindMismatchError is returned when credentials of the wrong shape are
// supplied for a provider.
type KindMismatchError struct {
	Provider ProviderKey
	Want     Kind
	Got      Kind
}

// Error implements the error interface.
func (e KindMismatchError) Error() string {
	return fmt.Sprintf("provider %s expects %s credentials, got %s", e.Provider, e.Want, e.Got)
}

// ValidationError reports a missing or malformed credential field.
type ValidationError struct {
	Kind    Kind
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("invalid %s credentials: %s %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid credentials: %s %s", e.Field, e.Message)
}
