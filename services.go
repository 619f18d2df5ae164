package provision

import "github.com/goliatone/go-provision/core"

type Config = core.Config

type Option = core.Option

type Orchestrator = core.Orchestrator

type Resource = core.Resource
type ResourceStatus = core.ResourceStatus
type ResourceSpec = core.ResourceSpec
type ResourceFilter = core.ResourceFilter
type ProvisionTask = core.ProvisionTask
type Credential = core.Credential
type PlanMap = core.PlanMap
type AuditEntry = core.AuditEntry
type LifecycleEvent = core.LifecycleEvent

type KickRequest = core.KickRequest
type ActionRequest = core.ActionRequest
type ResizeRequest = core.ResizeRequest
type InboundRequest = core.InboundRequest
type PollResult = core.PollResult
type TaskMessage = core.TaskMessage

type Driver = core.Driver
type WebhookDriver = core.WebhookDriver
type MetricsDriver = core.MetricsDriver
type InventoryDriver = core.InventoryDriver
type Registry = core.Registry
type TaskScheduler = core.TaskScheduler
type SecretProvider = core.SecretProvider
type StoreProvider = core.StoreProvider
type LifecycleEventBus = core.LifecycleEventBus
type LifecycleEventHandler = core.LifecycleEventHandler

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithErrorFactory    = core.WithErrorFactory
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithRegistry        = core.WithRegistry
	WithBreakerSet      = core.WithBreakerSet
	WithScheduler       = core.WithScheduler
	WithEventBus        = core.WithEventBus
	WithCredentialVault = core.WithCredentialVault
	WithSecretProvider  = core.WithSecretProvider
	WithResourceStore   = core.WithResourceStore
	WithTaskStore       = core.WithTaskStore
	WithCredentialStore = core.WithCredentialStore
	WithPlanMapStore    = core.WithPlanMapStore
	WithAuditStore      = core.WithAuditStore
	WithStoreProvider   = core.WithStoreProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithNow             = core.WithNow
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewOrchestrator(cfg Config, opts ...Option) (*Orchestrator, error) {
	return core.NewOrchestrator(cfg, opts...)
}

func NewDriverRegistry() *core.DriverRegistry {
	return core.NewDriverRegistry()
}
