package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidResourceStatusTransition = errors.New("core: invalid resource status transition")
	ErrInvalidTaskStatusTransition     = errors.New("core: invalid task status transition")
	ErrInvalidTaskAction               = errors.New("core: invalid task action")
	ErrInvalidCredentialScope          = errors.New("core: invalid credential scope")
	ErrResourceNotFound                = errors.New("core: resource not found")
	ErrTaskNotFound                    = errors.New("core: provision task not found")
	ErrPlanMapNotFound                 = errors.New("core: plan map not found")
)

type ResourceStatus string

const (
	ResourceStatusPending        ResourceStatus = "pending"
	ResourceStatusQueued         ResourceStatus = "queued"
	ResourceStatusProvisioning   ResourceStatus = "provisioning"
	ResourceStatusActive         ResourceStatus = "active"
	ResourceStatusSuspended      ResourceStatus = "suspended"
	ResourceStatusResuming       ResourceStatus = "resuming"
	ResourceStatusUpdating       ResourceStatus = "updating"
	ResourceStatusFailed         ResourceStatus = "failed"
	ResourceStatusDeprovisioning ResourceStatus = "deprovisioning"
	ResourceStatusDeprovisioned  ResourceStatus = "deprovisioned"
)

func (s ResourceStatus) Valid() bool {
	switch s {
	case ResourceStatusPending, ResourceStatusQueued, ResourceStatusProvisioning,
		ResourceStatusActive, ResourceStatusSuspended, ResourceStatusResuming,
		ResourceStatusUpdating, ResourceStatusFailed, ResourceStatusDeprovisioning,
		ResourceStatusDeprovisioned:
		return true
	}
	return false
}

// Resource is one provisioned infrastructure item. Rows are never deleted;
// deprovisioned resources are retained for history.
type Resource struct {
	ID           string
	OrderRef     string
	UserID       string
	DriverID     string
	ProviderRef  string
	PlanCode     string
	Region       string
	Status       ResourceStatus
	Spec         map[string]any
	LineItemRef  string
	LastError    string
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *Resource) TransitionTo(status ResourceStatus, reason string, now time.Time) error {
	if r == nil {
		return nil
	}
	if r.Status == status {
		r.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			r.LastError = strings.TrimSpace(reason)
		}
		return nil
	}
	if !resourceTransitionAllowed(r.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidResourceStatusTransition, r.Status, status)
	}
	r.Status = status
	r.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		r.LastError = strings.TrimSpace(reason)
	}
	if status == ResourceStatusActive {
		r.LastError = ""
	}
	return nil
}

func resourceTransitionAllowed(current, next ResourceStatus) bool {
	allowed := map[ResourceStatus]map[ResourceStatus]struct{}{
		ResourceStatusPending: {
			ResourceStatusQueued: {},
		},
		ResourceStatusQueued: {
			ResourceStatusProvisioning: {},
			// Permanent dispatch errors (bad credentials, rejected call)
			// surface before the provisioning edge ever applies.
			ResourceStatusFailed: {},
		},
		ResourceStatusProvisioning: {
			ResourceStatusActive: {},
			ResourceStatusFailed: {},
		},
		ResourceStatusActive: {
			ResourceStatusSuspended:      {},
			ResourceStatusUpdating:       {},
			ResourceStatusDeprovisioning: {},
			// Drift: sync observed the provider-side resource unhealthy or
			// gone.
			ResourceStatusFailed: {},
		},
		ResourceStatusSuspended: {
			ResourceStatusResuming: {},
			ResourceStatusFailed:   {},
		},
		ResourceStatusResuming: {
			ResourceStatusActive: {},
			ResourceStatusFailed: {},
		},
		ResourceStatusUpdating: {
			ResourceStatusActive: {},
			ResourceStatusFailed: {},
		},
		ResourceStatusFailed: {
			ResourceStatusDeprovisioning: {},
		},
		ResourceStatusDeprovisioning: {
			ResourceStatusDeprovisioned: {},
		},
		ResourceStatusDeprovisioned: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// TerminalStatus reports whether no further automatic transition occurs from
// the given status without an external trigger.
func TerminalStatus(status ResourceStatus) bool {
	switch status {
	case ResourceStatusActive, ResourceStatusFailed, ResourceStatusDeprovisioned:
		return true
	default:
		return false
	}
}

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

type TaskAction string

const (
	TaskActionProvision   TaskAction = "provision"
	TaskActionDeprovision TaskAction = "deprovision"
	TaskActionSuspend     TaskAction = "suspend"
	TaskActionResume      TaskAction = "resume"
	TaskActionResize      TaskAction = "resize"
	TaskActionSync        TaskAction = "sync"
)

func ParseTaskAction(value string) (TaskAction, error) {
	action := TaskAction(strings.TrimSpace(strings.ToLower(value)))
	switch action {
	case TaskActionProvision, TaskActionDeprovision, TaskActionSuspend,
		TaskActionResume, TaskActionResize, TaskActionSync:
		return action, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskAction, value)
	}
}

// ProvisionTask is one outstanding or completed unit of provider work tied to
// a resource. The attempt counter only ever increases; once the status is
// terminal no further polls are issued for it.
type ProvisionTask struct {
	ID             string
	ResourceID     string
	ProviderTaskID string
	Action         TaskAction
	Status         TaskStatus
	Attempts       int
	LastError      string
	NextPollAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (t *ProvisionTask) TransitionTo(status TaskStatus, detail string, now time.Time) error {
	if t == nil {
		return nil
	}
	if t.Status == status {
		t.UpdatedAt = now
		if strings.TrimSpace(detail) != "" {
			t.LastError = strings.TrimSpace(detail)
		}
		return nil
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTaskStatusTransition, t.Status, status)
	}
	t.Status = status
	t.UpdatedAt = now
	if strings.TrimSpace(detail) != "" {
		t.LastError = strings.TrimSpace(detail)
	}
	return nil
}

// IdempotencyKey ties a provider call to one logical attempt so a retried
// delivery cannot create a second provider-side effect.
func (t ProvisionTask) IdempotencyKey(orderRef string) string {
	return fmt.Sprintf("%s:attempt_%d", strings.TrimSpace(orderRef), t.Attempts)
}

type CredentialScope string

const (
	CredentialScopeUser   CredentialScope = "user"
	CredentialScopeSystem CredentialScope = "system"
)

func (s CredentialScope) Validate() error {
	switch s {
	case CredentialScopeUser, CredentialScopeSystem:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCredentialScope, s)
	}
}

// Credential is an encrypted provider secret. Plaintext is never persisted
// and never logged; the decrypted value lives only inside one driver call.
type Credential struct {
	ID                string
	Name              string
	DriverID          string
	Scope             CredentialScope
	UserID            string
	EncryptedPayload  []byte
	EncryptionKeyID   string
	EncryptionVersion int
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PlanMap bridges a billing plan code to the driver-side plan a kick should
// provision. Read-only from the orchestrator's perspective.
type PlanMap struct {
	ID           string
	PlanCode     string
	DriverID     string
	ProviderPlan string
	Region       string
	Config       map[string]any
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuditEntry is one immutable row per accepted transition. The store exposes
// no update or delete for these rows.
type AuditEntry struct {
	ID           string
	ResourceID   string
	Actor        string
	Action       string
	StatusBefore ResourceStatus
	StatusAfter  ResourceStatus
	Metadata     map[string]any
	CreatedAt    time.Time
}

// ResourceSpec is what a driver receives on provision and resize.
type ResourceSpec struct {
	OrderRef     string
	UserID       string
	PlanCode     string
	ProviderPlan string
	Region       string
	Config       map[string]any
}

type LifecycleEvent struct {
	ID         string
	Name       string
	DriverID   string
	ResourceID string
	OrderRef   string
	OccurredAt time.Time
	Payload    map[string]any
	Metadata   map[string]any
}
