package service

import (
	"fmt"
	"slices"
	"sync"
)

// CoreServices are constructed even when [http.services.<name>] is absent.
var CoreServices = []string{"api", "ui"}

var (
	registryMu sync.RWMutex
	registry   = map[string]NewService{}
)

// Register adds a service constructor. Duplicate names are an error.
func Register(name string, newFunc NewService) error {
	if newFunc == nil {
		return fmt.Errorf("service %q: nil constructor", name)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		return fmt.Errorf("service %q already registered", name)
	}
	registry[name] = newFunc
	return nil
}

// MustRegister is Register for init(); it panics on error.
func MustRegister(name string, newFunc NewService) {
	if err := Register(name, newFunc); err != nil {
		panic(err)
	}
}

// Get returns the constructor for name, or nil.
func Get(name string) NewService {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// RegisteredServices returns registered names in sorted order.
func RegisteredServices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = map[string]NewService{}
}
