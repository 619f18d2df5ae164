package core

import (
	"errors"
	"testing"
	"time"
)

func TestTransition_ProvisioningLifecycle(t *testing.T) {
	now := time.Now().UTC()
	resource := Resource{ID: "res-1", Status: ResourceStatusPending}

	result, err := Transition(resource, Event{Kind: EventDispatchQueued, Action: TaskActionProvision}, now)
	if err != nil {
		t.Fatalf("queue transition failed: %v", err)
	}
	if result.To != ResourceStatusQueued {
		t.Fatalf("expected queued, got %s", result.To)
	}
	if result.Audit.Actor != "system" {
		t.Fatalf("expected default actor system, got %q", result.Audit.Actor)
	}
	if result.Audit.StatusBefore != ResourceStatusPending || result.Audit.StatusAfter != ResourceStatusQueued {
		t.Fatalf("audit statuses wrong: %s -> %s", result.Audit.StatusBefore, result.Audit.StatusAfter)
	}

	resource.Status = ResourceStatusQueued
	result, err = Transition(resource, Event{Kind: EventDispatchStarted, Action: TaskActionProvision}, now)
	if err != nil {
		t.Fatalf("start transition failed: %v", err)
	}
	if result.To != ResourceStatusProvisioning {
		t.Fatalf("expected provisioning, got %s", result.To)
	}

	resource.Status = ResourceStatusProvisioning
	result, err = Transition(resource, Event{Kind: EventDriverSucceeded, Action: TaskActionProvision}, now)
	if err != nil {
		t.Fatalf("success transition failed: %v", err)
	}
	if result.To != ResourceStatusActive {
		t.Fatalf("expected active, got %s", result.To)
	}
}

func TestTransition_SameStatusIsLegalNoMove(t *testing.T) {
	now := time.Now().UTC()
	resource := Resource{ID: "res-1", Status: ResourceStatusSuspended}

	result, err := Transition(resource, Event{Kind: EventDriverSucceeded, Action: TaskActionSuspend}, now)
	if err != nil {
		t.Fatalf("suspend confirmation on suspended resource must be a no-move: %v", err)
	}
	if result.From != ResourceStatusSuspended || result.To != ResourceStatusSuspended {
		t.Fatalf("expected suspended no-move, got %s -> %s", result.From, result.To)
	}
	if result.Audit.ResourceID != "res-1" {
		t.Fatalf("audit row must still be produced for a no-move")
	}
}

func TestTransition_IllegalEdgeRejected(t *testing.T) {
	now := time.Now().UTC()
	resource := Resource{Status: ResourceStatusDeprovisioning}

	_, err := Transition(resource, Event{Kind: EventDriverFailed, Action: TaskActionDeprovision}, now)
	if !errors.Is(err, ErrInvalidResourceStatusTransition) {
		t.Fatalf("deprovisioning has no failed edge, got: %v", err)
	}

	resource.Status = ResourceStatusPending
	_, err = Transition(resource, Event{Kind: EventOperatorSuspend, Action: TaskActionSuspend}, now)
	if !errors.Is(err, ErrInvalidResourceStatusTransition) {
		t.Fatalf("pending resource must not suspend, got: %v", err)
	}
}

func TestTransition_OperatorEvents(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		from  ResourceStatus
		event Event
		to    ResourceStatus
	}{
		{ResourceStatusActive, Event{Kind: EventOperatorSuspend, Action: TaskActionSuspend, Actor: "ops@example.com"}, ResourceStatusSuspended},
		{ResourceStatusSuspended, Event{Kind: EventOperatorResume, Action: TaskActionResume}, ResourceStatusResuming},
		{ResourceStatusActive, Event{Kind: EventOperatorResize, Action: TaskActionResize}, ResourceStatusUpdating},
		{ResourceStatusActive, Event{Kind: EventOperatorDeprovision, Action: TaskActionDeprovision}, ResourceStatusDeprovisioning},
		{ResourceStatusFailed, Event{Kind: EventOperatorDeprovision, Action: TaskActionDeprovision}, ResourceStatusDeprovisioning},
	}
	for _, tc := range cases {
		result, err := Transition(Resource{Status: tc.from}, tc.event, now)
		if err != nil {
			t.Fatalf("%s on %s: %v", tc.event.Kind, tc.from, err)
		}
		if result.To != tc.to {
			t.Fatalf("%s on %s: expected %s, got %s", tc.event.Kind, tc.from, tc.to, result.To)
		}
	}
}

func TestTransition_OperatorActorPreserved(t *testing.T) {
	now := time.Now().UTC()
	result, err := Transition(
		Resource{Status: ResourceStatusActive},
		Event{Kind: EventOperatorSuspend, Action: TaskActionSuspend, Actor: "ops@example.com", Detail: "billing hold"},
		now,
	)
	if err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if result.Audit.Actor != "ops@example.com" {
		t.Fatalf("expected operator actor, got %q", result.Audit.Actor)
	}
	if result.Audit.Metadata["detail"] != "billing hold" {
		t.Fatalf("expected detail in metadata, got %v", result.Audit.Metadata["detail"])
	}
	if result.Audit.Action != "operator.suspend:suspend" {
		t.Fatalf("unexpected audit action %q", result.Audit.Action)
	}
}

func TestTransition_MetadataRedacted(t *testing.T) {
	now := time.Now().UTC()
	result, err := Transition(
		Resource{Status: ResourceStatusProvisioning},
		Event{
			Kind:   EventDriverFailed,
			Action: TaskActionProvision,
			Metadata: map[string]any{
				"api_key":   "sk-secret",
				"driver_id": "fake",
			},
		},
		now,
	)
	if err != nil {
		t.Fatalf("failure transition failed: %v", err)
	}
	if result.Audit.Metadata["api_key"] != "[REDACTED]" {
		t.Fatalf("expected api_key redacted, got %v", result.Audit.Metadata["api_key"])
	}
	if result.Audit.Metadata["driver_id"] != "fake" {
		t.Fatalf("traceability key must survive, got %v", result.Audit.Metadata["driver_id"])
	}
}

func TestTransition_DriverFailureBeforeProvisioningEdge(t *testing.T) {
	now := time.Now().UTC()
	result, err := Transition(
		Resource{Status: ResourceStatusQueued},
		Event{Kind: EventDriverFailed, Action: TaskActionProvision, Detail: "credential rejected"},
		now,
	)
	if err != nil {
		t.Fatalf("failure from queued must be legal: %v", err)
	}
	if result.To != ResourceStatusFailed {
		t.Fatalf("expected failed, got %s", result.To)
	}
}

func TestTransition_DriftFromActive(t *testing.T) {
	now := time.Now().UTC()
	result, err := Transition(Resource{Status: ResourceStatusActive}, Event{Kind: EventDriftDetected, Action: TaskActionSync}, now)
	if err != nil {
		t.Fatalf("drift transition failed: %v", err)
	}
	if result.To != ResourceStatusFailed {
		t.Fatalf("expected failed on drift, got %s", result.To)
	}

	_, err = Transition(Resource{Status: ResourceStatusPending}, Event{Kind: EventDriftDetected, Action: TaskActionSync}, now)
	if !errors.Is(err, ErrInvalidResourceStatusTransition) {
		t.Fatalf("drift from pending must be rejected, got: %v", err)
	}
}
