package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrDriverNotRegistered    = errors.New("core: driver not registered")
	ErrCapabilityNotSupported = errors.New("core: capability not supported")
)

// DriverRegistry maps driver identifiers to implementations. It is built once
// at process start; absence of a capability is a queryable fact, never a
// runtime type assertion scattered through callers.
type DriverRegistry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

func NewDriverRegistry() *DriverRegistry {
	return &DriverRegistry{drivers: make(map[string]Driver)}
}

func (r *DriverRegistry) Register(driver Driver) error {
	if driver == nil {
		return fmt.Errorf("core: driver is nil")
	}
	id := strings.TrimSpace(driver.ID())
	if id == "" {
		return fmt.Errorf("core: driver id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.drivers[id]; exists {
		return fmt.Errorf("core: driver already registered: %s", id)
	}
	r.drivers[id] = driver
	return nil
}

func (r *DriverRegistry) Get(driverID string) (Driver, bool) {
	id := strings.TrimSpace(driverID)
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	driver, ok := r.drivers[id]
	r.mu.RUnlock()
	return driver, ok
}

func (r *DriverRegistry) List() []Driver {
	r.mu.RLock()
	keys := make([]string, 0, len(r.drivers))
	for id := range r.drivers {
		keys = append(keys, id)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	drivers := make([]Driver, 0, len(keys))
	r.mu.RLock()
	for _, id := range keys {
		drivers = append(drivers, r.drivers[id])
	}
	r.mu.RUnlock()
	return drivers
}

func (r *DriverRegistry) Supports(driverID string, capability Capability) bool {
	driver, ok := r.Get(driverID)
	if !ok {
		return false
	}
	for _, descriptor := range driver.Capabilities() {
		if descriptor.Name == capability {
			return true
		}
	}
	return false
}

// ResolveCapability returns the driver after asserting it advertises the
// capability; calling an optional surface without this check is a contract
// violation, not a crash.
func (r *DriverRegistry) ResolveCapability(driverID string, capability Capability) (Driver, error) {
	driver, ok := r.Get(driverID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDriverNotRegistered, driverID)
	}
	if !r.Supports(driverID, capability) {
		return nil, fmt.Errorf("%w: driver %s does not support %s", ErrCapabilityNotSupported, driverID, capability)
	}
	return driver, nil
}
