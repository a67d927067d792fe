package module

import "sync"

// Process-wide port directory. Modules publish their port bundles by name
// during bootstrap so late collaborators (handlers wired in main, tests)
// can reach them without threading every port through every constructor
var (
	regMu    sync.RWMutex
	registry = map[string]any{}
)

// Register publishes a module's port bundle under its name. A later
// registration for the same name replaces the earlier one
func Register(name string, ports any) {
	regMu.Lock()
	registry[name] = ports
	regMu.Unlock()
}

// PortsAs looks up the bundle registered under name and extracts the port
// T from it, walking exported struct fields the same way PortsOf does
func PortsAs[T any](name string) (T, bool) {
	regMu.RLock()
	p, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	return asPort[T](p)
}

// Reset empties the directory between tests
func Reset() {
	regMu.Lock()
	registry = map[string]any{}
	regMu.Unlock()
}
