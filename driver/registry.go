package driver

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a driver.
type Factory func() (Driver, error)

var (
	registryMu sync.RWMutex
	drivers    = make(map[string]Factory)
	// Priority order for OpenDefault (first registered wins).
	driverPriority = []string{"hal"}
)

// Register registers a driver factory with the given name.
// This is typically called from init() functions in driver packages.
// If a driver with the same name is already registered, it is replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	drivers[name] = factory
}

// Unregister removes a driver from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(drivers, name)
}

// Available returns the sorted names of the registered drivers.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get creates the driver registered under name.
func Get(name string) (Driver, error) {
	registryMu.RLock()
	factory, ok := drivers[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	d, err := factory()
	if err != nil {
		return nil, fmt.Errorf("driver: %s: %w", name, err)
	}
	return d, nil
}

// Default returns the best available driver based on priority, falling
// back to the first registered name in sorted order.
func Default() (Driver, error) {
	registryMu.RLock()
	var order []string
	for _, name := range driverPriority {
		if _, ok := drivers[name]; ok {
			order = append(order, name)
		}
	}
	registryMu.RUnlock()

	for _, name := range Available() {
		if !contains(order, name) {
			order = append(order, name)
		}
	}
	if len(order) == 0 {
		return nil, ErrNoDriver
	}

	var firstErr error
	for _, name := range order {
		d, err := Get(name)
		if err == nil {
			return d, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// Open opens an instance on the named driver, or on Default when name is
// empty.
func Open(name string, desc InstanceDesc) (Instance, error) {
	var (
		d   Driver
		err error
	)
	if name == "" {
		d, err = Default()
	} else {
		d, err = Get(name)
	}
	if err != nil {
		return nil, err
	}
	return d.Open(desc)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
