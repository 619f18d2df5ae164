package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type DriverKind string

const (
	DriverKindPanel   DriverKind = "panel"
	DriverKindCompute DriverKind = "compute"
	DriverKindGame    DriverKind = "game"
	DriverKindCloud   DriverKind = "cloud"
)

type Capability string

const (
	CapabilityProvision Capability = "provision"
	CapabilityMetrics   Capability = "metrics"
	CapabilityInventory Capability = "inventory"
	CapabilityWebhooks  Capability = "webhooks"
)

type CapabilityDescriptor struct {
	Name        Capability
	Description string
}

type PollState string

const (
	PollStatePending   PollState = "pending"
	PollStateCompleted PollState = "completed"
	PollStateFailed    PollState = "failed"
)

// PollResult is the normalized outcome of a driver poll or a verified webhook
// delivery; both feed the same completion path.
type PollResult struct {
	State       PollState
	ProviderRef string
	Detail      string
	Transient   bool
	Metadata    map[string]any
}

// DriverSecret is the decrypted credential handed to a driver for the
// duration of a single call. Implementations must not retain it.
type DriverSecret struct {
	CredentialID string
	Payload      []byte
}

type ProvisionCall struct {
	Resource       Resource
	Spec           ResourceSpec
	IdempotencyKey string
	Secret         DriverSecret
}

type LifecycleCall struct {
	Resource       Resource
	IdempotencyKey string
	Secret         DriverSecret
}

// Driver is the base contract every provider implementation satisfies. The
// lifecycle methods are mandatory; optional surfaces hang off the capability
// interfaces below and are only reachable after a registry Supports check.
type Driver interface {
	ID() string
	Kind() DriverKind
	Capabilities() []CapabilityDescriptor

	Provision(ctx context.Context, call ProvisionCall) (providerTaskID string, err error)
	Poll(ctx context.Context, providerTaskID string) (PollResult, error)
	Deprovision(ctx context.Context, call LifecycleCall) (providerTaskID string, err error)
	Suspend(ctx context.Context, call LifecycleCall) (providerTaskID string, err error)
	Resume(ctx context.Context, call LifecycleCall) (providerTaskID string, err error)
	Resize(ctx context.Context, call ProvisionCall) (providerTaskID string, err error)
}

type UsageSample struct {
	Name     string
	Value    float64
	Unit     string
	Metadata map[string]any
}

type MetricsDriver interface {
	Usage(ctx context.Context, resource Resource) ([]UsageSample, error)
	Health(ctx context.Context, resource Resource) (PollResult, error)
	Costs(ctx context.Context, resource Resource) ([]UsageSample, error)
}

type InventoryDriver interface {
	Regions(ctx context.Context) ([]string, error)
	Images(ctx context.Context) ([]string, error)
	Plans(ctx context.Context) ([]string, error)
	Quotas(ctx context.Context) (map[string]int, error)
}

type InboundRequest struct {
	DriverID string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

// WebhookDriver is optional; a driver without it is poll-only and the
// orchestrator must never assume webhook delivery for it.
type WebhookDriver interface {
	VerifySignature(ctx context.Context, req InboundRequest) error
	HandleWebhook(ctx context.Context, req InboundRequest) (taskRef string, result PollResult, err error)
}

type Registry interface {
	Register(driver Driver) error
	Get(driverID string) (Driver, bool)
	List() []Driver
	Supports(driverID string, capability Capability) bool
}

type CreateResourceInput struct {
	OrderRef    string
	UserID      string
	DriverID    string
	PlanCode    string
	Region      string
	Spec        map[string]any
	LineItemRef string
}

// ApplyTransitionInput covers "read current status, validate transition,
// write new status + audit row" as one unit; stores implement it inside a
// transaction so partial application is never observable.
type ApplyTransitionInput struct {
	ResourceID  string
	Result      TransitionResult
	ProviderRef string
	LastError   string
}

// ResourceFilter narrows List results; zero-value fields match everything.
type ResourceFilter struct {
	UserID   string
	DriverID string
	Status   ResourceStatus
}

func (f ResourceFilter) Matches(resource Resource) bool {
	if f.UserID != "" && resource.UserID != f.UserID {
		return false
	}
	if f.DriverID != "" && resource.DriverID != f.DriverID {
		return false
	}
	if f.Status != "" && resource.Status != f.Status {
		return false
	}
	return true
}

type ResourceStore interface {
	Create(ctx context.Context, in CreateResourceInput) (Resource, error)
	Get(ctx context.Context, id string) (Resource, error)
	FindByOrderRef(ctx context.Context, orderRef string) (Resource, bool, error)
	List(ctx context.Context, filter ResourceFilter) ([]Resource, error)
	ApplyTransition(ctx context.Context, in ApplyTransitionInput) (Resource, error)
	MarkSynced(ctx context.Context, id string, at time.Time) error
}

type CreateTaskInput struct {
	ResourceID string
	Action     TaskAction
}

type TaskStore interface {
	Create(ctx context.Context, in CreateTaskInput) (ProvisionTask, error)
	Get(ctx context.Context, id string) (ProvisionTask, error)
	// FindActive returns the non-terminal task for (resource, action), the
	// single-flight anchor.
	FindActive(ctx context.Context, resourceID string, action TaskAction) (ProvisionTask, bool, error)
	FindByProviderTaskID(ctx context.Context, driverID string, providerTaskID string) (ProvisionTask, bool, error)
	ListActive(ctx context.Context, resourceID string) ([]ProvisionTask, error)
	Update(ctx context.Context, task ProvisionTask) (ProvisionTask, error)
}

type StoreCredentialInput struct {
	Name              string
	DriverID          string
	Scope             CredentialScope
	UserID            string
	EncryptedPayload  []byte
	EncryptionKeyID   string
	EncryptionVersion int
	CreatedBy         string
}

type CredentialStore interface {
	Create(ctx context.Context, in StoreCredentialInput) (Credential, error)
	Get(ctx context.Context, id string) (Credential, error)
	// FindForDriver returns candidates for a driver; per-user scope wins over
	// system scope when both exist.
	FindForDriver(ctx context.Context, driverID string, userID string) ([]Credential, error)
}

type PlanMapStore interface {
	ResolvePlan(ctx context.Context, planCode string) (PlanMap, error)
}

// AuditStore is append-only: the contract exposes no update or delete.
type AuditStore interface {
	Record(ctx context.Context, entry AuditEntry) (AuditEntry, error)
	ListByResource(ctx context.Context, resourceID string) ([]AuditEntry, error)
}

type StoreProvider interface {
	ResourceStore() ResourceStore
	TaskStore() TaskStore
	CredentialStore() CredentialStore
	PlanMapStore() PlanMapStore
	AuditStore() AuditStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// TaskMessage is the unit of scheduled work carried by the durable queue.
type TaskMessage struct {
	Kind           string
	TaskID         string
	ResourceID     string
	DriverID       string
	IdempotencyKey string
	Parameters     map[string]any
}

const (
	TaskKindDispatch = "provision.dispatch"
	TaskKindPoll     = "provision.task.poll"
)

// TaskScheduler schedules a task for immediate or future execution on the
// durable queue. Attempt counts come from persisted task state, not from
// queue-runtime metadata, so they survive process restarts.
type TaskScheduler interface {
	Schedule(ctx context.Context, msg TaskMessage, delay time.Duration) error
	Cancel(taskID string) bool
}

type LifecycleEventHandler interface {
	Handle(ctx context.Context, event LifecycleEvent) error
}

type LifecycleEventBus interface {
	Publish(ctx context.Context, event LifecycleEvent) error
	Subscribe(handler LifecycleEventHandler)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
