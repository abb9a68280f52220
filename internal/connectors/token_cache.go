package connectors

import (
	"sync"
	"time"
)

// refreshBuffer is subtracted from every TTL so sessions are renewed before
// the provider expires them.
const refreshBuffer = 5 * time.Second

// TokenCache holds one session token in memory with its expiry. It is safe
// for concurrent use. Tokens are never persisted.
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewTokenCache creates an empty token cache
func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// Get returns the cached token if it exists and is not expired.
func (c *TokenCache) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" || !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// Set stores a token valid for ttl, less the refresh buffer when ttl is
// longer than the buffer.
func (c *TokenCache) Set(token string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl > refreshBuffer {
		ttl -= refreshBuffer
	}
	c.token = token
	c.expiresAt = c.now().Add(ttl)
}

// Clear removes the cached token and returns the value it held.
func (c *TokenCache) Clear() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.token
	c.token = ""
	c.expiresAt = time.Time{}
	return token
}

// TTL returns the remaining lifetime, or 0 if expired or unset.
func (c *TokenCache) TTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" {
		return 0
	}
	remaining := c.expiresAt.Sub(c.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}
