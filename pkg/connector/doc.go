// Package connector defines the public contract between finlink and the
// financial institutions it talks to.
//
// finlink fronts several institution APIs whose protocols, credential shapes
// and connection semantics are incompatible. This package reduces them to one
// lifecycle:
//
//	Connect    establish the session (token exchange, mTLS handshake, ...)
//	HealthCheck probe the live session
//	Disconnect release it
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                 Host surface (cmd/finlink, api)             │
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │
//	┌─────────────────────────▼───────────────────────────────────┐
//	│                 Adapter registry                            │
//	│               (internal/registry/)                          │
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │
//	┌─────────────────────────▼───────────────────────────────────┐
//	│                 Connector contract                          │
//	│                 (pkg/connector/)               ◄────────────┤
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │
//	┌─────────────────────────▼───────────────────────────────────┐
//	│              Connector implementations                      │
//	│              (internal/connectors/)                         │
//	│   ┌──────────┐  ┌──────────┐  ┌──────────┐                  │
//	│   │  scotia  │  │    td    │  │   bmo    │  ... pending     │
//	│   └──────────┘  └──────────┘  └──────────┘                  │
//	└─────────────────────────────────────────────────────────────┘
//
// # Providers and Credentials
//
// ProviderKey is a closed set. Each key declares the credential Kind it
// expects, and RawCredentials is a sum type with one variant per Kind:
//
//	OAuthClientCredentials  oauth2
//	CertificateCredentials  certificate
//	APIKeyCredentials       api_key
//	BasicCredentials        basic
//
// RawCredentials values exist only in memory. The registry seals them through
// the credential vault before anything reaches durable storage.
//
// # Error Handling
//
// Connectors report failures with the typed errors in this package:
//   - ConnectError, DisconnectError and HealthCheckError wrap the transport cause
//   - NotImplementedError marks a provider without a connector variant and
//     matches ErrNotImplemented with errors.Is
//
// # Threading and Concurrency
//
// Connector implementations must be safe for concurrent use. The registry
// may run HealthCheck while another goroutine holds a borrowed reference.
package connector
