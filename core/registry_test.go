package core

import (
	"errors"
	"testing"
)

func TestDriverRegistry_RegisterAndGet(t *testing.T) {
	registry := NewDriverRegistry()
	driver := newFakeDriver("proxmox")

	if err := registry.Register(driver); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(driver); err == nil {
		t.Fatalf("duplicate registration must fail")
	}

	got, ok := registry.Get("proxmox")
	if !ok {
		t.Fatalf("expected driver to be found")
	}
	if got.ID() != "proxmox" {
		t.Fatalf("unexpected driver %q", got.ID())
	}
	if _, ok := registry.Get("missing"); ok {
		t.Fatalf("missing driver must not be found")
	}
}

func TestDriverRegistry_ListSorted(t *testing.T) {
	registry := NewDriverRegistry()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := registry.Register(newFakeDriver(id)); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	drivers := registry.List()
	if len(drivers) != 3 {
		t.Fatalf("expected 3 drivers, got %d", len(drivers))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, driver := range drivers {
		if driver.ID() != want[i] {
			t.Fatalf("expected %s at index %d, got %s", want[i], i, driver.ID())
		}
	}
}

func TestDriverRegistry_Supports(t *testing.T) {
	registry := NewDriverRegistry()
	if err := registry.Register(newFakeDriver("plain")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(newFakeDriver("hooked").withWebhooks()); err != nil {
		t.Fatalf("register: %v", err)
	}

	if !registry.Supports("plain", CapabilityProvision) {
		t.Fatalf("plain driver must support provision")
	}
	if registry.Supports("plain", CapabilityWebhooks) {
		t.Fatalf("plain driver must not support webhooks")
	}
	if !registry.Supports("hooked", CapabilityWebhooks) {
		t.Fatalf("hooked driver must support webhooks")
	}
}

func TestDriverRegistry_ResolveCapability(t *testing.T) {
	registry := NewDriverRegistry()
	if err := registry.Register(newFakeDriver("plain")); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := registry.ResolveCapability("plain", CapabilityProvision); err != nil {
		t.Fatalf("resolve provision: %v", err)
	}
	_, err := registry.ResolveCapability("plain", CapabilityWebhooks)
	if !errors.Is(err, ErrCapabilityNotSupported) {
		t.Fatalf("expected capability error, got: %v", err)
	}
	_, err = registry.ResolveCapability("missing", CapabilityProvision)
	if !errors.Is(err, ErrDriverNotRegistered) {
		t.Fatalf("expected not registered error, got: %v", err)
	}
}
