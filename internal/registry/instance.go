package registry

import "sync"

var (
	instance     *Registry
	instanceOnce sync.Once
)

// Instance returns the process-wide registry, creating it with sealer and
// opts on the first call. Later calls ignore their arguments and return the
// same registry.
//
// Prefer New and explicit wiring; Instance exists for hosts that want one
// registry per process without threading it through their own code.
func Instance(sealer Sealer, opts ...Option) *Registry {
	instanceOnce.Do(func() {
		instance = New(sealer, opts...)
	})
	return instance
}
