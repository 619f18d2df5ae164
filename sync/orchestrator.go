// Package sync reconciles recorded resource state with provider reality.
// A runner asks each driver that reports health whether the resource is
// still alive; healthy resources get their sync timestamp bumped, dead ones
// take the drift edge through the state machine.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-provision/core"
)

// Report is the outcome of one drift check.
type Report struct {
	ResourceID string
	Checked    bool
	Drifted    bool
	Status     core.ResourceStatus
	Detail     string
}

type Runner struct {
	resources core.ResourceStore
	registry  core.Registry
	bus       core.LifecycleEventBus
	logger    core.Logger
	Now       func() time.Time
}

func NewRunner(resources core.ResourceStore, registry core.Registry, logger core.Logger) (*Runner, error) {
	if resources == nil {
		return nil, fmt.Errorf("sync: resource store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("sync: driver registry is required")
	}
	return &Runner{
		resources: resources,
		registry:  registry,
		logger:    glog.Ensure(logger),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// WithEventBus publishes a failure event when drift forces a resource into
// the failed status.
func (r *Runner) WithEventBus(bus core.LifecycleEventBus) *Runner {
	r.bus = bus
	return r
}

// CheckResource compares one resource against the provider's health report.
// Resources that are not active, or whose driver does not report health, are
// skipped without error.
func (r *Runner) CheckResource(ctx context.Context, resourceID string) (Report, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return Report{}, fmt.Errorf("sync: resource id is required")
	}

	resource, err := r.resources.Get(ctx, resourceID)
	if err != nil {
		return Report{}, err
	}
	report := Report{ResourceID: resource.ID, Status: resource.Status}

	if resource.Status != core.ResourceStatusActive {
		report.Detail = "resource is not active"
		return report, nil
	}
	if !r.registry.Supports(resource.DriverID, core.CapabilityMetrics) {
		report.Detail = "driver does not report health"
		return report, nil
	}

	driver, ok := r.registry.Get(resource.DriverID)
	if !ok {
		return report, fmt.Errorf("sync: driver %q is not registered", resource.DriverID)
	}
	metrics, ok := driver.(core.MetricsDriver)
	if !ok {
		return report, fmt.Errorf("sync: driver %q advertises metrics without implementing them", resource.DriverID)
	}

	health, err := metrics.Health(ctx, resource)
	if err != nil {
		return report, fmt.Errorf("sync: health check for %s: %w", resource.ID, err)
	}

	now := r.currentTime()
	report.Checked = true

	if health.State != core.PollStateFailed {
		if err := r.resources.MarkSynced(ctx, resource.ID, now); err != nil {
			return report, err
		}
		report.Detail = health.Detail
		return report, nil
	}

	result, err := core.Transition(resource, core.Event{
		Kind:   core.EventDriftDetected,
		Action: core.TaskActionSync,
		Actor:  "sync",
		Detail: health.Detail,
	}, now)
	if err != nil {
		return report, err
	}
	updated, err := r.resources.ApplyTransition(ctx, core.ApplyTransitionInput{
		ResourceID: resource.ID,
		Result:     result,
		LastError:  health.Detail,
	})
	if err != nil {
		return report, err
	}

	report.Drifted = true
	report.Status = updated.Status
	report.Detail = health.Detail
	r.logger.Warn("resource drift detected",
		"resource_id", resource.ID, "driver_id", resource.DriverID, "detail", health.Detail)
	r.publishFailed(ctx, updated, health.Detail)
	return report, nil
}

// CheckMany checks every id, never stopping at the first failure. The
// returned error joins the per-resource failures.
func (r *Runner) CheckMany(ctx context.Context, resourceIDs []string) ([]Report, error) {
	reports := make([]Report, 0, len(resourceIDs))
	var errs []error
	for _, id := range resourceIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		report, err := r.CheckResource(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

func (r *Runner) publishFailed(ctx context.Context, resource core.Resource, detail string) {
	if r.bus == nil {
		return
	}
	event := core.LifecycleEvent{
		Name:       core.EventResourceFailed,
		DriverID:   resource.DriverID,
		ResourceID: resource.ID,
		OrderRef:   resource.OrderRef,
		OccurredAt: r.currentTime(),
		Payload: map[string]any{
			"action": string(core.TaskActionSync),
			"detail": detail,
		},
	}
	if err := r.bus.Publish(ctx, event); err != nil {
		r.logger.Warn("lifecycle publish failed",
			"event", event.Name, "resource_id", resource.ID, "error", err)
	}
}

func (r *Runner) currentTime() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now()
}
