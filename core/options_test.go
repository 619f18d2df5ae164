package core

import (
	"context"
	"testing"
	"time"
)

type mapRawConfigLoader map[string]any

func (m mapRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return m, nil
}

func TestCfgxConfigProvider_MergesDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawConfigLoader{
		"service_name": "provision-staging",
		"poll": map[string]any{
			"max_attempts": 4,
		},
	})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "provision-staging" {
		t.Fatalf("expected loaded name, got %q", cfg.ServiceName)
	}
	if cfg.Poll.MaxAttempts != 4 {
		t.Fatalf("expected loaded attempt cap, got %d", cfg.Poll.MaxAttempts)
	}
	if cfg.Poll.BaseDelay != 2*time.Second {
		t.Fatalf("unset values must keep defaults, got %s", cfg.Poll.BaseDelay)
	}
}

func TestGoOptionsResolver_RuntimeWins(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{ServiceName: "from-config", Poll: PollConfig{MaxAttempts: 6}}
	runtime := Config{Poll: PollConfig{MaxAttempts: 3}}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ServiceName != "from-config" {
		t.Fatalf("config layer must override defaults, got %q", resolved.ServiceName)
	}
	if resolved.Poll.MaxAttempts != 3 {
		t.Fatalf("runtime layer must win, got %d", resolved.Poll.MaxAttempts)
	}
	if resolved.Poll.BaseDelay != 2*time.Second {
		t.Fatalf("defaults must fill unset values, got %s", resolved.Poll.BaseDelay)
	}
}

func TestNewOrchestrator_RuntimeConfigApplied(t *testing.T) {
	driver := newFakeDriver("fake")
	h := newOrchestratorHarness(t, driver)
	if got := h.orchestrator.Config().ServiceName; got != "provision" {
		t.Fatalf("expected default service name, got %q", got)
	}

	clock := newFakeClock()
	audits := newMemoryAuditStore()
	orchestrator, err := NewOrchestrator(
		Config{Poll: PollConfig{MaxAttempts: 2}},
		WithResourceStore(newMemoryResourceStore(audits, clock.Now)),
		WithTaskStore(newMemoryTaskStore(clock.Now)),
		WithAuditStore(audits),
	)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	if got := orchestrator.Config().Poll.MaxAttempts; got != 2 {
		t.Fatalf("runtime override must apply, got %d", got)
	}
	if got := orchestrator.Config().Poll.BaseDelay; got != 2*time.Second {
		t.Fatalf("defaults must backfill, got %s", got)
	}
}

func TestNewOrchestrator_RequiresStores(t *testing.T) {
	if _, err := NewOrchestrator(Config{}); err == nil {
		t.Fatalf("expected error without stores")
	}
}
