package vault

import (
	"errors"
	"fmt"
)

// ErrMissingMasterSecret is returned by New when no master secret is
// configured. It is fatal at startup.
var ErrMissingMasterSecret = errors.New("vault: master secret not configured")

// DecryptionError indicates that a record could not be opened: the tag did
// not verify, the key was wrong, or a component was malformed. No plaintext
// is ever returned alongside it.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decryption failed: %s: %v", e.Reason, e.Err)
	}
	return "decryption failed: " + e.Reason
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// InvalidCredentialsError indicates a malformed or undecryptable opaque
// credentials bundle.
type InvalidCredentialsError struct {
	Reason string
	Err    error
}

func (e *InvalidCredentialsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid credentials: %s: %v", e.Reason, e.Err)
	}
	return "invalid credentials: " + e.Reason
}

func (e *InvalidCredentialsError) Unwrap() error { return e.Err }
