package fakes

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/systmms/finlink/internal/credstore"
)

// FakeAkeylessClient is an in-memory test double for credstore.AkeylessAPI.
//
// Every item operation checks the token against Token, so a store that
// skips Authenticate or keeps a rotated token fails with
// ErrFakeAkeylessUnauthorized.
type FakeAkeylessClient struct {
	mu sync.Mutex

	// Token is the token returned by Authenticate
	Token string
	// TokenTTL is the TTL returned by Authenticate
	TokenTTL time.Duration
	// Items maps item paths to their values
	Items map[string]string
	// AuthErr is returned by Authenticate if set
	AuthErr error
	// Errors maps item paths to errors to return
	Errors map[string]error

	// AuthCallCount tracks how many times Authenticate was called
	AuthCallCount int
	// CreateCallCount tracks how many times CreateSecret was called
	CreateCallCount int
}

// NewFakeAkeylessClient creates a new fake Akeyless client with defaults
func NewFakeAkeylessClient() *FakeAkeylessClient {
	return &FakeAkeylessClient{
		Token:    "fake-akeyless-token",
		TokenTTL: 30 * time.Second,
		Items:    make(map[string]string),
		Errors:   make(map[string]error),
	}
}

// SetSecret adds a static secret
func (f *FakeAkeylessClient) SetSecret(path, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Items[path] = value
}

// RotateToken invalidates the current token.
func (f *FakeAkeylessClient) RotateToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Token = token
}

// Calls returns the Authenticate and CreateSecret call counts.
func (f *FakeAkeylessClient) Calls() (auth, create int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.AuthCallCount, f.CreateCallCount
}

// Authenticate obtains an access token
func (f *FakeAkeylessClient) Authenticate(_ context.Context) (string, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AuthCallCount++
	if f.AuthErr != nil {
		return "", 0, f.AuthErr
	}
	return f.Token, f.TokenTTL, nil
}

func (f *FakeAkeylessClient) check(token, path string) error {
	if token != f.Token {
		return ErrFakeAkeylessUnauthorized
	}
	if err, ok := f.Errors[path]; ok {
		return err
	}
	return nil
}

// GetSecret returns a static secret value
func (f *FakeAkeylessClient) GetSecret(_ context.Context, token, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token, path); err != nil {
		return "", err
	}
	value, ok := f.Items[path]
	if !ok {
		return "", ErrFakeAkeylessSecretNotFound
	}
	return value, nil
}

// CreateSecret creates a static secret; existing paths are rejected
func (f *FakeAkeylessClient) CreateSecret(_ context.Context, token, path, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCallCount++
	if err := f.check(token, path); err != nil {
		return err
	}
	if _, ok := f.Items[path]; ok {
		return ErrFakeAkeylessItemExists
	}
	f.Items[path] = value
	return nil
}

// UpdateSecret replaces the value of an existing static secret
func (f *FakeAkeylessClient) UpdateSecret(_ context.Context, token, path, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token, path); err != nil {
		return err
	}
	if _, ok := f.Items[path]; !ok {
		return ErrFakeAkeylessSecretNotFound
	}
	f.Items[path] = value
	return nil
}

// DeleteItem removes an item
func (f *FakeAkeylessClient) DeleteItem(_ context.Context, token, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token, path); err != nil {
		return err
	}
	if _, ok := f.Items[path]; !ok {
		return ErrFakeAkeylessSecretNotFound
	}
	delete(f.Items, path)
	return nil
}

// ListItems lists item names under path
func (f *FakeAkeylessClient) ListItems(_ context.Context, token, path string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(token, path); err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(path, "/") + "/"
	var names []string
	for name := range f.Items {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ErrFakeAkeylessSecretNotFound is returned when an item doesn't exist
var ErrFakeAkeylessSecretNotFound = &fakeAkeylessError{code: "itemNotFound", message: "item not found"}

// ErrFakeAkeylessUnauthorized is returned for auth failures
var ErrFakeAkeylessUnauthorized = &fakeAkeylessError{code: "unauthorized", message: "authentication failed"}

// ErrFakeAkeylessItemExists is returned when creating an existing item
var ErrFakeAkeylessItemExists = &fakeAkeylessError{code: "itemAlreadyExists", message: "item already exists"}

type fakeAkeylessError struct {
	code    string
	message string
}

func (e *fakeAkeylessError) Error() string {
	return e.message
}

func (e *fakeAkeylessError) Code() string {
	return e.code
}

var _ credstore.AkeylessAPI = (*FakeAkeylessClient)(nil)
