package interceptors

import (
	"slices"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]NewInterceptor{}
)

// Register adds an interceptor constructor. Called from init(); a later
// registration under the same name replaces the earlier one.
func Register(name string, fn NewInterceptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// Get looks up a constructor.
func Get(name string) (NewInterceptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names lists registered interceptors, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
