package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-provision/core"
	"github.com/goliatone/go-provision/drivers/devkit"
)

func TestRunner_MarksHealthyResourcesSynced(t *testing.T) {
	driver := devkit.NewFakeDriver("fake").
		WithMetrics(nil, core.PollResult{State: core.PollStateCompleted, Detail: "healthy"})
	runner, store := newRunnerHarness(t, driver, core.Resource{
		ID:       "res-1",
		DriverID: "fake",
		Status:   core.ResourceStatusActive,
	})

	report, err := runner.CheckResource(context.Background(), "res-1")
	if err != nil {
		t.Fatalf("check resource: %v", err)
	}
	if !report.Checked || report.Drifted {
		t.Fatalf("expected healthy check without drift, got %+v", report)
	}
	if _, ok := store.synced["res-1"]; !ok {
		t.Fatalf("expected sync timestamp recorded")
	}
	if store.resources["res-1"].Status != core.ResourceStatusActive {
		t.Fatalf("healthy resource must stay active")
	}
}

func TestRunner_DriftForcesFailedAndPublishes(t *testing.T) {
	driver := devkit.NewFakeDriver("fake").
		WithMetrics(nil, core.PollResult{State: core.PollStateFailed, Detail: "instance missing"})
	runner, store := newRunnerHarness(t, driver, core.Resource{
		ID:       "res-1",
		OrderRef: "order-1",
		DriverID: "fake",
		Status:   core.ResourceStatusActive,
	})

	events := &devkit.RecordingEventHandler{}
	bus := core.NewMemoryLifecycleBus(nil)
	bus.Subscribe(events)
	runner.WithEventBus(bus)

	report, err := runner.CheckResource(context.Background(), "res-1")
	if err != nil {
		t.Fatalf("check resource: %v", err)
	}
	if !report.Drifted || report.Status != core.ResourceStatusFailed {
		t.Fatalf("expected drift into failed, got %+v", report)
	}
	if store.resources["res-1"].Status != core.ResourceStatusFailed {
		t.Fatalf("expected store transition applied")
	}
	if store.resources["res-1"].LastError != "instance missing" {
		t.Fatalf("expected drift detail recorded as last error")
	}

	names := events.Names()
	if len(names) != 1 || names[0] != core.EventResourceFailed {
		t.Fatalf("expected failure event published, got %v", names)
	}
}

func TestRunner_SkipsWithoutMetricsCapability(t *testing.T) {
	driver := devkit.NewFakeDriver("fake")
	runner, store := newRunnerHarness(t, driver, core.Resource{
		ID:       "res-1",
		DriverID: "fake",
		Status:   core.ResourceStatusActive,
	})

	report, err := runner.CheckResource(context.Background(), "res-1")
	if err != nil {
		t.Fatalf("check resource: %v", err)
	}
	if report.Checked {
		t.Fatalf("expected poll-only driver skipped, got %+v", report)
	}
	if _, ok := store.synced["res-1"]; ok {
		t.Fatalf("skipped resource must not be marked synced")
	}
}

func TestRunner_SkipsInactiveResources(t *testing.T) {
	driver := devkit.NewFakeDriver("fake").
		WithMetrics(nil, core.PollResult{State: core.PollStateFailed, Detail: "gone"})
	runner, store := newRunnerHarness(t, driver, core.Resource{
		ID:       "res-1",
		DriverID: "fake",
		Status:   core.ResourceStatusSuspended,
	})

	report, err := runner.CheckResource(context.Background(), "res-1")
	if err != nil {
		t.Fatalf("check resource: %v", err)
	}
	if report.Checked || report.Drifted {
		t.Fatalf("expected suspended resource skipped, got %+v", report)
	}
	if store.resources["res-1"].Status != core.ResourceStatusSuspended {
		t.Fatalf("suspended resource must keep its status")
	}
}

func TestRunner_CheckManyCollectsFailures(t *testing.T) {
	driver := devkit.NewFakeDriver("fake").
		WithMetrics(nil, core.PollResult{State: core.PollStateCompleted})
	runner, _ := newRunnerHarness(t, driver, core.Resource{
		ID:       "res-1",
		DriverID: "fake",
		Status:   core.ResourceStatusActive,
	})

	reports, err := runner.CheckMany(context.Background(), []string{"res-1", "missing"})
	if err == nil {
		t.Fatalf("expected aggregated error for missing resource")
	}
	if len(reports) != 1 || reports[0].ResourceID != "res-1" {
		t.Fatalf("expected the healthy resource still reported, got %+v", reports)
	}
}

func newRunnerHarness(t *testing.T, driver core.Driver, resources ...core.Resource) (*Runner, *memResourceStore) {
	t.Helper()

	store := newMemResourceStore(resources...)
	registry := core.NewDriverRegistry()
	if err := registry.Register(driver); err != nil {
		t.Fatalf("register driver: %v", err)
	}
	runner, err := NewRunner(store, registry, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	runner.Now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return runner, store
}

type memResourceStore struct {
	resources map[string]core.Resource
	synced    map[string]time.Time
}

func newMemResourceStore(resources ...core.Resource) *memResourceStore {
	store := &memResourceStore{
		resources: map[string]core.Resource{},
		synced:    map[string]time.Time{},
	}
	for _, resource := range resources {
		store.resources[resource.ID] = resource
	}
	return store
}

func (s *memResourceStore) Create(context.Context, core.CreateResourceInput) (core.Resource, error) {
	return core.Resource{}, fmt.Errorf("not used")
}

func (s *memResourceStore) Get(_ context.Context, id string) (core.Resource, error) {
	resource, ok := s.resources[id]
	if !ok {
		return core.Resource{}, fmt.Errorf("resource %q not found", id)
	}
	return resource, nil
}

func (s *memResourceStore) FindByOrderRef(context.Context, string) (core.Resource, bool, error) {
	return core.Resource{}, false, nil
}

func (s *memResourceStore) List(_ context.Context, filter core.ResourceFilter) ([]core.Resource, error) {
	var matched []core.Resource
	for _, resource := range s.resources {
		if filter.Matches(resource) {
			matched = append(matched, resource)
		}
	}
	return matched, nil
}

func (s *memResourceStore) ApplyTransition(_ context.Context, in core.ApplyTransitionInput) (core.Resource, error) {
	resource, ok := s.resources[in.ResourceID]
	if !ok {
		return core.Resource{}, fmt.Errorf("resource %q not found", in.ResourceID)
	}
	resource.Status = in.Result.To
	resource.LastError = in.LastError
	s.resources[in.ResourceID] = resource
	return resource, nil
}

func (s *memResourceStore) MarkSynced(_ context.Context, id string, at time.Time) error {
	if _, ok := s.resources[id]; !ok {
		return fmt.Errorf("resource %q not found", id)
	}
	s.synced[id] = at
	return nil
}

var _ core.ResourceStore = (*memResourceStore)(nil)
