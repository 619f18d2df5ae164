package core

import (
	"errors"
	"testing"
	"time"
)

func TestResourceTransitionTo_ValidAndInvalid(t *testing.T) {
	now := time.Now().UTC()
	resource := Resource{Status: ResourceStatusPending}

	if err := resource.TransitionTo(ResourceStatusQueued, "", now); err != nil {
		t.Fatalf("expected pending->queued to work: %v", err)
	}
	if err := resource.TransitionTo(ResourceStatusProvisioning, "", now); err != nil {
		t.Fatalf("expected queued->provisioning to work: %v", err)
	}
	if err := resource.TransitionTo(ResourceStatusActive, "", now); err != nil {
		t.Fatalf("expected provisioning->active to work: %v", err)
	}

	err := resource.TransitionTo(ResourceStatusQueued, "", now)
	if !errors.Is(err, ErrInvalidResourceStatusTransition) {
		t.Fatalf("expected invalid transition error, got: %v", err)
	}
}

func TestResourceTransitionTo_ClearsLastErrorOnActive(t *testing.T) {
	now := time.Now().UTC()
	resource := Resource{Status: ResourceStatusResuming, LastError: "suspend reason"}

	if err := resource.TransitionTo(ResourceStatusActive, "", now); err != nil {
		t.Fatalf("expected resuming->active to work: %v", err)
	}
	if resource.LastError != "" {
		t.Fatalf("expected last_error cleared on active, got %q", resource.LastError)
	}
}

func TestResourceTransitionTable(t *testing.T) {
	cases := []struct {
		from    ResourceStatus
		to      ResourceStatus
		allowed bool
	}{
		{ResourceStatusPending, ResourceStatusQueued, true},
		{ResourceStatusPending, ResourceStatusActive, false},
		{ResourceStatusQueued, ResourceStatusProvisioning, true},
		{ResourceStatusQueued, ResourceStatusFailed, true},
		{ResourceStatusProvisioning, ResourceStatusActive, true},
		{ResourceStatusProvisioning, ResourceStatusFailed, true},
		{ResourceStatusProvisioning, ResourceStatusSuspended, false},
		{ResourceStatusActive, ResourceStatusSuspended, true},
		{ResourceStatusActive, ResourceStatusUpdating, true},
		{ResourceStatusActive, ResourceStatusDeprovisioning, true},
		{ResourceStatusActive, ResourceStatusFailed, true},
		{ResourceStatusSuspended, ResourceStatusResuming, true},
		{ResourceStatusSuspended, ResourceStatusFailed, true},
		{ResourceStatusSuspended, ResourceStatusActive, false},
		{ResourceStatusResuming, ResourceStatusActive, true},
		{ResourceStatusResuming, ResourceStatusFailed, true},
		{ResourceStatusUpdating, ResourceStatusActive, true},
		{ResourceStatusUpdating, ResourceStatusFailed, true},
		{ResourceStatusFailed, ResourceStatusDeprovisioning, true},
		{ResourceStatusFailed, ResourceStatusActive, false},
		{ResourceStatusDeprovisioning, ResourceStatusDeprovisioned, true},
		{ResourceStatusDeprovisioning, ResourceStatusFailed, false},
		{ResourceStatusDeprovisioned, ResourceStatusActive, false},
		{ResourceStatusDeprovisioned, ResourceStatusQueued, false},
	}
	for _, tc := range cases {
		if got := resourceTransitionAllowed(tc.from, tc.to); got != tc.allowed {
			t.Fatalf("%s -> %s: expected allowed=%v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestTerminalStatus(t *testing.T) {
	terminal := []ResourceStatus{ResourceStatusActive, ResourceStatusFailed, ResourceStatusDeprovisioned}
	for _, status := range terminal {
		if !TerminalStatus(status) {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
	if TerminalStatus(ResourceStatusProvisioning) {
		t.Fatalf("provisioning must not be terminal")
	}
	if TerminalStatus(ResourceStatusDeprovisioning) {
		t.Fatalf("deprovisioning must not be terminal")
	}
}

func TestProvisionTaskTransitionTo(t *testing.T) {
	now := time.Now().UTC()
	task := ProvisionTask{Status: TaskStatusPending}

	if err := task.TransitionTo(TaskStatusCompleted, "done", now); err != nil {
		t.Fatalf("expected pending->completed to work: %v", err)
	}
	err := task.TransitionTo(TaskStatusFailed, "", now)
	if !errors.Is(err, ErrInvalidTaskStatusTransition) {
		t.Fatalf("expected terminal task to reject transition, got: %v", err)
	}
}

func TestIdempotencyKey(t *testing.T) {
	task := ProvisionTask{Attempts: 3}
	if got := task.IdempotencyKey("ord-123"); got != "ord-123:attempt_3" {
		t.Fatalf("unexpected idempotency key: %q", got)
	}
	if got := task.IdempotencyKey("  ord-123  "); got != "ord-123:attempt_3" {
		t.Fatalf("expected trimmed order ref in key, got %q", got)
	}
}

func TestParseTaskAction(t *testing.T) {
	action, err := ParseTaskAction(" Provision ")
	if err != nil {
		t.Fatalf("expected provision to parse: %v", err)
	}
	if action != TaskActionProvision {
		t.Fatalf("expected provision, got %q", action)
	}

	if _, err := ParseTaskAction("reboot"); !errors.Is(err, ErrInvalidTaskAction) {
		t.Fatalf("expected invalid action error, got: %v", err)
	}
}

func TestCredentialScopeValidate(t *testing.T) {
	if err := CredentialScopeUser.Validate(); err != nil {
		t.Fatalf("user scope should validate: %v", err)
	}
	if err := CredentialScope("tenant").Validate(); !errors.Is(err, ErrInvalidCredentialScope) {
		t.Fatalf("expected invalid scope error, got: %v", err)
	}
}
