package provision

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-provision/core"
)

// DriverPack is a named group of drivers an embedder contributes before the
// registry is sealed at startup.
type DriverPack struct {
	Name    string
	Drivers []core.Driver
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects contributions from embedding applications: driver
// packs applied to the registry during wiring and command/query bundles built
// around the shared service.
type ExtensionHooks struct {
	mu sync.RWMutex

	driverPacks map[string]DriverPack
	bundles     map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		driverPacks: map[string]DriverPack{},
		bundles:     map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterDriverPack(pack DriverPack) error {
	if h == nil {
		return fmt.Errorf("provision: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("provision: driver pack name is required")
	}
	if len(pack.Drivers) == 0 {
		return fmt.Errorf("provision: driver pack %q has no drivers", name)
	}

	normalized := DriverPack{
		Name:    name,
		Drivers: append([]core.Driver(nil), pack.Drivers...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.driverPacks[name]; exists {
		return fmt.Errorf("provision: driver pack %q already registered", name)
	}
	h.driverPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("provision: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("provision: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("provision: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("provision: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyDriverPacks registers every contributed driver, in pack name order.
// The registry rejects duplicate driver ids, so colliding packs fail here
// rather than at dispatch time.
func (h *ExtensionHooks) ApplyDriverPacks(registry core.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("provision: registry is required")
	}

	for _, pack := range h.DriverPacks() {
		for _, driver := range pack.Drivers {
			if driver == nil {
				return fmt.Errorf("provision: driver pack %q contains nil driver", pack.Name)
			}
			if err := registry.Register(driver); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("provision: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) DriverPacks() []DriverPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.driverPacks))
	for name := range h.driverPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]DriverPack, 0, len(names))
	for _, name := range names {
		pack := h.driverPacks[name]
		out = append(out, DriverPack{
			Name:    pack.Name,
			Drivers: append([]core.Driver(nil), pack.Drivers...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
