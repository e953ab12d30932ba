package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory creates a Runtime from a loaded descriptor.
//
// Factories are registered with RegisterRuntime and are called when a runtime config names
// their backend.
type Factory func(ctx context.Context, d *Descriptor) (Runtime, error)

var (
	// runtimeRegistry stores runtime factories by backend identifier
	runtimeRegistry = make(map[string]Factory)
	// runtimeRegistryMu protects concurrent access to the registry
	runtimeRegistryMu sync.RWMutex
)

// RegisterRuntime registers a runtime factory for a backend identifier.
//
// This should be called from init() functions in backend packages. The identifier is the value
// of the "runtime" field in a runtime config, e.g. "wasm" or "extism".
//
// Example:
//
//	func init() {
//	    bridge.RegisterRuntime("wasm", NewRuntime)
//	}
func RegisterRuntime(kind string, factory Factory) {
	runtimeRegistryMu.Lock()
	defer runtimeRegistryMu.Unlock()
	runtimeRegistry[kind] = factory
}

// GetRuntimeFactory retrieves the factory registered for kind.
//
// Returns an error if no factory is registered; usually the backend package was not imported.
func GetRuntimeFactory(kind string) (Factory, error) {
	runtimeRegistryMu.RLock()
	defer runtimeRegistryMu.RUnlock()
	factory, ok := runtimeRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("no runtime factory registered for backend: %s", kind)
	}
	return factory, nil
}

// ListRegisteredRuntimes returns all registered backend identifiers in sorted order.
func ListRegisteredRuntimes() []string {
	runtimeRegistryMu.RLock()
	defer runtimeRegistryMu.RUnlock()
	kinds := make([]string, 0, len(runtimeRegistry))
	for kind := range runtimeRegistry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
