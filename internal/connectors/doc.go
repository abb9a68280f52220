// Package connectors implements the per-institution connector variants and
// the factory registry that builds them.
//
// Implemented variants:
//
//   - scotia: OAuth2 client credentials, rate-limited status probes
//   - td: mutual TLS with a client certificate
//   - bmo: API key with an HMAC-signed session, cached until expiry
//
// rbc, cibc, desjardins and national are registered as pending: their
// factory returns connector.NotImplementedError, and IsImplemented reports
// false for them.
//
// Every variant enforces Endpoint.Timeout per operation and retries
// idempotent requests up to Endpoint.RetryAttempts times when the failure is
// transient.
package connectors
