// Package fakes provides test doubles for finlink interfaces.
//
// This package contains fake implementations of connectors and of the cloud
// SDK clients used by the credential stores, so packages can be unit tested
// without real institutions or cloud services. Fakes are manually implemented
// (not generated) to provide precise control over test behavior.
//
// Usage:
//
//	set := fakes.NewConnectorSet()
//	set.Configure(connector.Scotia, func(c *fakes.FakeConnector) {
//	    c.WithConnectError(errors.New("timeout"))
//	})
//	reg := registry.New(v, registry.WithFactories(set.Factories(connector.Scotia)))
//	// Test registry methods...
package fakes
