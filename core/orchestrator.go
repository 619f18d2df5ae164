package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var ErrDispatchConflict = errors.New("core: dispatch already in flight")

type KickRequest struct {
	OrderRef    string
	UserID      string
	PlanCode    string
	LineItemRef string
	Metadata    map[string]any
}

type ActionRequest struct {
	ResourceID string
	Actor      string
	Reason     string
}

type ResizeRequest struct {
	ResourceID string
	Actor      string
	PlanCode   string
	Spec       map[string]any
}

// Orchestrator coordinates the resource lifecycle: it receives triggering
// events, owns Resource and ProvisionTask records, drives driver calls
// through the per-driver circuit breaker, schedules poller work, and appends
// to the audit ledger through state-machine-authorized transitions. Nothing
// here blocks the caller on provider I/O beyond the single dispatched call of
// the currently executing work unit.
type Orchestrator struct {
	config       Config
	logger       Logger
	metrics      MetricsRecorder
	errorFactory ErrorFactory
	errorMapper  ErrorMapper
	registry     Registry
	breakers     *BreakerSet
	scheduler    TaskScheduler
	bus          LifecycleEventBus
	vault        *CredentialVault
	poller       *TaskPoller
	resources    ResourceStore
	tasks        TaskStore
	planMaps     PlanMapStore
	audits       AuditStore
	now          func() time.Time
}

func NewOrchestrator(cfg Config, options ...Option) (*Orchestrator, error) {
	builder := defaultOrchestratorBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("provision", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("provision"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.errorMapper == nil {
		builder.errorMapper = provisionErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewDriverRegistry()
	}
	if builder.now == nil {
		builder.now = func() time.Time {
			return time.Now().UTC()
		}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	resolved, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.breakers == nil {
		builder.breakers = NewBreakerSet(resolved.Breaker)
	}
	if builder.eventBus == nil {
		builder.eventBus = NewMemoryLifecycleBus(logger)
	}
	if builder.resourceStore == nil || builder.taskStore == nil || builder.auditStore == nil {
		return nil, mapBuildError(builder.errorMapper,
			fmt.Errorf("core: resource, task, and audit stores are required"))
	}
	if builder.vault == nil && builder.credentialStore != nil && builder.secretProvider != nil {
		vault, vaultErr := NewCredentialVault(builder.credentialStore, builder.secretProvider)
		if vaultErr != nil {
			return nil, mapBuildError(builder.errorMapper, vaultErr)
		}
		builder.vault = vault
	}

	if builder.metrics == nil {
		builder.metrics = NopMetricsRecorder{}
	}

	orchestrator := &Orchestrator{
		config:       resolved,
		logger:       logger,
		metrics:      builder.metrics,
		errorFactory: builder.errorFactory,
		errorMapper:  builder.errorMapper,
		registry:     builder.registry,
		breakers:     builder.breakers,
		scheduler:    builder.scheduler,
		bus:          builder.eventBus,
		vault:        builder.vault,
		resources:    builder.resourceStore,
		tasks:        builder.taskStore,
		planMaps:     builder.planMapStore,
		audits:       builder.auditStore,
		now:          builder.now,
	}
	if orchestrator.scheduler == nil {
		orchestrator.scheduler = NewMemoryScheduler(orchestrator, logger)
	}
	orchestrator.poller = NewTaskPoller(
		builder.taskStore,
		builder.resourceStore,
		builder.registry,
		builder.breakers,
		orchestrator.scheduler,
		orchestrator,
		resolved.Poll,
		logger,
	)
	orchestrator.poller.Now = builder.now
	return orchestrator, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if mapper == nil {
		return err
	}
	return mapper(err)
}

func (o *Orchestrator) Config() Config {
	if o == nil {
		return Config{}
	}
	return o.config
}

func (o *Orchestrator) Poller() *TaskPoller {
	if o == nil {
		return nil
	}
	return o.poller
}

// Kick is the idempotent entry point triggered by a captured payment. A
// resource that already exists for the order is returned as-is; duplicate
// deliveries become no-ops.
func (o *Orchestrator) Kick(ctx context.Context, req KickRequest) (Resource, error) {
	if o == nil {
		return Resource{}, fmt.Errorf("core: orchestrator is nil")
	}
	orderRef := strings.TrimSpace(req.OrderRef)
	if orderRef == "" {
		return Resource{}, o.mapError(fmt.Errorf("core: order ref is required"))
	}
	planCode := strings.TrimSpace(req.PlanCode)
	if planCode == "" {
		return Resource{}, o.mapError(fmt.Errorf("core: plan code is required"))
	}

	existing, found, err := o.resources.FindByOrderRef(ctx, orderRef)
	if err != nil {
		return Resource{}, o.mapError(err)
	}
	if found {
		return existing, nil
	}

	if o.planMaps == nil {
		return Resource{}, o.mapError(fmt.Errorf("core: plan map store is required for kick"))
	}
	planMap, err := o.planMaps.ResolvePlan(ctx, planCode)
	if err != nil {
		return Resource{}, o.mapError(err)
	}

	resource, err := o.resources.Create(ctx, CreateResourceInput{
		OrderRef:    orderRef,
		UserID:      strings.TrimSpace(req.UserID),
		DriverID:    planMap.DriverID,
		PlanCode:    planCode,
		Region:      planMap.Region,
		Spec:        buildSpecPayload(planMap, req),
		LineItemRef: strings.TrimSpace(req.LineItemRef),
	})
	if err != nil {
		return Resource{}, o.mapError(err)
	}

	resource, err = o.applyEvent(ctx, resource, Event{
		Kind:     EventDispatchQueued,
		Action:   TaskActionProvision,
		Actor:    "system",
		Metadata: req.Metadata,
	}, "")
	if err != nil {
		return Resource{}, err
	}

	o.publish(ctx, EventOrderPlaced, resource, map[string]any{
		"plan_code": planCode,
		"region":    resource.Region,
	})

	if _, err := o.dispatchAction(ctx, resource, TaskActionProvision); err != nil {
		return Resource{}, err
	}
	return resource, nil
}

// Suspend, Resume, Deprovision, and Resize validate the requested action
// against the state machine before anything touches the wire, then dispatch
// the matching driver capability as an asynchronous task.
func (o *Orchestrator) Suspend(ctx context.Context, req ActionRequest) (ProvisionTask, error) {
	return o.operatorAction(ctx, req, EventOperatorSuspend, TaskActionSuspend)
}

func (o *Orchestrator) Resume(ctx context.Context, req ActionRequest) (ProvisionTask, error) {
	return o.operatorAction(ctx, req, EventOperatorResume, TaskActionResume)
}

func (o *Orchestrator) Deprovision(ctx context.Context, req ActionRequest) (ProvisionTask, error) {
	return o.operatorAction(ctx, req, EventOperatorDeprovision, TaskActionDeprovision)
}

func (o *Orchestrator) Resize(ctx context.Context, req ResizeRequest) (ProvisionTask, error) {
	if o == nil {
		return ProvisionTask{}, fmt.Errorf("core: orchestrator is nil")
	}
	resource, err := o.resources.Get(ctx, strings.TrimSpace(req.ResourceID))
	if err != nil {
		return ProvisionTask{}, o.mapError(err)
	}

	resource, err = o.applyEvent(ctx, resource, Event{
		Kind:   EventOperatorResize,
		Action: TaskActionResize,
		Actor:  req.Actor,
		Metadata: map[string]any{
			"plan_code": strings.TrimSpace(req.PlanCode),
		},
	}, "")
	if err != nil {
		return ProvisionTask{}, err
	}
	return o.dispatchAction(ctx, resource, TaskActionResize)
}

func (o *Orchestrator) operatorAction(
	ctx context.Context,
	req ActionRequest,
	kind EventKind,
	action TaskAction,
) (ProvisionTask, error) {
	if o == nil {
		return ProvisionTask{}, fmt.Errorf("core: orchestrator is nil")
	}
	resource, err := o.resources.Get(ctx, strings.TrimSpace(req.ResourceID))
	if err != nil {
		return ProvisionTask{}, o.mapError(err)
	}

	resource, err = o.applyEvent(ctx, resource, Event{
		Kind:   kind,
		Action: action,
		Actor:  req.Actor,
		Detail: req.Reason,
	}, "")
	if err != nil {
		return ProvisionTask{}, err
	}

	if action == TaskActionDeprovision {
		o.cancelOutstandingTasks(ctx, resource, "superseded by deprovision")
	}
	return o.dispatchAction(ctx, resource, action)
}

// dispatchAction enforces the single-flight rule: at most one in-flight
// provider call per (resource, action). A concurrent duplicate observes the
// existing non-terminal task and no-ops.
func (o *Orchestrator) dispatchAction(ctx context.Context, resource Resource, action TaskAction) (ProvisionTask, error) {
	active, found, err := o.tasks.FindActive(ctx, resource.ID, action)
	if err != nil {
		return ProvisionTask{}, o.mapError(err)
	}
	if found {
		return active, nil
	}

	task, err := o.tasks.Create(ctx, CreateTaskInput{ResourceID: resource.ID, Action: action})
	if err != nil {
		return ProvisionTask{}, o.mapError(err)
	}

	if err := o.scheduler.Schedule(ctx, TaskMessage{
		Kind:       TaskKindDispatch,
		TaskID:     task.ID,
		ResourceID: resource.ID,
		DriverID:   resource.DriverID,
	}, 0); err != nil {
		return ProvisionTask{}, o.mapError(err)
	}
	return task, nil
}

// Run makes the orchestrator the consumer of scheduled task messages.
func (o *Orchestrator) Run(ctx context.Context, msg TaskMessage) error {
	if o == nil {
		return fmt.Errorf("core: orchestrator is nil")
	}
	switch msg.Kind {
	case TaskKindDispatch:
		return o.runDispatch(ctx, msg.TaskID)
	case TaskKindPoll:
		return o.poller.CheckOnce(ctx, msg.TaskID)
	default:
		return fmt.Errorf("core: unknown task message kind %q", msg.Kind)
	}
}

// runDispatch performs the outbound driver call for a task, carrying the
// idempotency key for this logical attempt. Transient failures reschedule the
// dispatch with backoff; permanent ones fail the resource.
func (o *Orchestrator) runDispatch(ctx context.Context, taskID string) error {
	task, err := o.tasks.Get(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return o.mapError(err)
	}
	if task.Status.Terminal() {
		return nil
	}
	if task.ProviderTaskID != "" {
		// The wire call for this task already succeeded; a redelivered
		// dispatch must not claim a fresh attempt or re-invoke the driver.
		return o.mapError(o.poller.SchedulePoll(ctx, task, o.poller.NextDelay(1)))
	}
	resource, err := o.resources.Get(ctx, task.ResourceID)
	if err != nil {
		return o.mapError(err)
	}
	driver, ok := o.registry.Get(resource.DriverID)
	if !ok {
		return o.FailTask(ctx, task.ID, fmt.Errorf("%w: %s", ErrDriverNotRegistered, resource.DriverID), false)
	}

	secret, err := o.secretFor(ctx, resource)
	if err != nil {
		return o.FailTask(ctx, task.ID, err, false)
	}

	// The attempt is claimed before the wire call so the idempotency key
	// names this logical attempt even if the process dies mid-call.
	task.Attempts++
	task.UpdatedAt = o.currentTime()
	task, err = o.tasks.Update(ctx, task)
	if err != nil {
		return o.mapError(err)
	}
	idempotencyKey := task.IdempotencyKey(resource.OrderRef)

	var providerTaskID string
	callErr := o.breakers.Call(resource.DriverID, func() error {
		var driverErr error
		providerTaskID, driverErr = o.invokeDriver(ctx, driver, task.Action, resource, secret, idempotencyKey)
		return driverErr
	})
	if callErr != nil {
		if IsTransient(callErr) || errors.Is(callErr, ErrCircuitOpen) {
			return o.retryDispatch(ctx, task, callErr)
		}
		return o.FailTask(ctx, task.ID, callErr, false)
	}

	task.ProviderTaskID = strings.TrimSpace(providerTaskID)
	task.UpdatedAt = o.currentTime()
	task, err = o.tasks.Update(ctx, task)
	if err != nil {
		return o.mapError(err)
	}

	switch task.Action {
	case TaskActionProvision:
		// Provider reference is pinned no later than the provisioning edge.
		resource, err = o.applyEvent(ctx, resource, Event{
			Kind:   EventDispatchStarted,
			Action: task.Action,
			Actor:  "system",
			Metadata: map[string]any{
				"idempotency_key": idempotencyKey,
			},
		}, task.ProviderTaskID)
		if err != nil {
			return err
		}
	case TaskActionDeprovision:
		// Already in deprovisioning from the operator edge; nothing to move.
	}

	return o.mapError(o.poller.SchedulePoll(ctx, task, o.poller.NextDelay(1)))
}

func (o *Orchestrator) retryDispatch(ctx context.Context, task ProvisionTask, cause error) error {
	if task.Attempts >= o.config.Poll.MaxAttempts {
		return o.FailTask(ctx, task.ID, cause, true)
	}
	o.logger.Warn("dispatch attempt failed, rescheduling",
		"task_id", task.ID, "attempt", task.Attempts, "error", cause)
	return o.mapError(o.scheduler.Schedule(ctx, TaskMessage{
		Kind:       TaskKindDispatch,
		TaskID:     task.ID,
		ResourceID: task.ResourceID,
	}, o.poller.NextDelay(task.Attempts)))
}

func (o *Orchestrator) invokeDriver(
	ctx context.Context,
	driver Driver,
	action TaskAction,
	resource Resource,
	secret DriverSecret,
	idempotencyKey string,
) (string, error) {
	lifecycle := LifecycleCall{Resource: resource, IdempotencyKey: idempotencyKey, Secret: secret}
	switch action {
	case TaskActionProvision:
		return driver.Provision(ctx, ProvisionCall{
			Resource:       resource,
			Spec:           o.buildSpec(resource),
			IdempotencyKey: idempotencyKey,
			Secret:         secret,
		})
	case TaskActionDeprovision:
		return driver.Deprovision(ctx, lifecycle)
	case TaskActionSuspend:
		return driver.Suspend(ctx, lifecycle)
	case TaskActionResume:
		return driver.Resume(ctx, lifecycle)
	case TaskActionResize:
		return driver.Resize(ctx, ProvisionCall{
			Resource:       resource,
			Spec:           o.buildSpec(resource),
			IdempotencyKey: idempotencyKey,
			Secret:         secret,
		})
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskAction, action)
	}
}

// HandleWebhook verifies and normalizes an inbound driver callback, then
// feeds it through the same completion path as a poll result. The next
// scheduled poll observes the terminal task and skips its driver call.
func (o *Orchestrator) HandleWebhook(ctx context.Context, req InboundRequest) (ProvisionTask, error) {
	if o == nil {
		return ProvisionTask{}, fmt.Errorf("core: orchestrator is nil")
	}
	driverID := strings.TrimSpace(req.DriverID)
	registry, ok := o.registry.(*DriverRegistry)
	var driver Driver
	var err error
	if ok {
		driver, err = registry.ResolveCapability(driverID, CapabilityWebhooks)
		if err != nil {
			return ProvisionTask{}, o.mapError(err)
		}
	} else {
		var found bool
		driver, found = o.registry.Get(driverID)
		if !found {
			return ProvisionTask{}, o.mapError(fmt.Errorf("%w: %s", ErrDriverNotRegistered, driverID))
		}
		if !o.registry.Supports(driverID, CapabilityWebhooks) {
			return ProvisionTask{}, o.mapError(fmt.Errorf(
				"%w: driver %s does not support %s", ErrCapabilityNotSupported, driverID, CapabilityWebhooks))
		}
	}

	webhookDriver, ok := driver.(WebhookDriver)
	if !ok {
		return ProvisionTask{}, o.mapError(fmt.Errorf(
			"%w: driver %s advertises webhooks without implementing them", ErrCapabilityNotSupported, driverID))
	}
	if err := webhookDriver.VerifySignature(ctx, req); err != nil {
		return ProvisionTask{}, o.mapError(fmt.Errorf("core: webhook signature verification failed: %w", err))
	}

	taskRef, result, err := webhookDriver.HandleWebhook(ctx, req)
	if err != nil {
		return ProvisionTask{}, o.mapError(err)
	}
	task, found, err := o.tasks.FindByProviderTaskID(ctx, driverID, strings.TrimSpace(taskRef))
	if err != nil {
		return ProvisionTask{}, o.mapError(err)
	}
	if !found {
		return ProvisionTask{}, o.mapError(fmt.Errorf("%w: provider task %s", ErrTaskNotFound, taskRef))
	}
	if task.Status.Terminal() {
		// Duplicate delivery of an already-handled attempt: safe no-op.
		return task, nil
	}
	if result.State == PollStatePending {
		return task, nil
	}
	if err := o.CompleteTask(ctx, task.ID, result); err != nil {
		return ProvisionTask{}, err
	}
	refreshed, getErr := o.tasks.Get(ctx, task.ID)
	if getErr != nil {
		return task, nil
	}
	return refreshed, nil
}

// PollTask runs one poll cycle; exposed for queue consumers and operators.
func (o *Orchestrator) PollTask(ctx context.Context, taskID string) error {
	if o == nil {
		return fmt.Errorf("core: orchestrator is nil")
	}
	return o.poller.CheckOnce(ctx, taskID)
}

// CompleteTask applies a terminal poll or webhook result: one state-machine
// authorized transition, one audit row, task closed, pending polls dropped.
func (o *Orchestrator) CompleteTask(ctx context.Context, taskID string, result PollResult) error {
	task, err := o.tasks.Get(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return o.mapError(err)
	}
	if task.Status.Terminal() {
		return nil
	}
	resource, err := o.resources.Get(ctx, task.ResourceID)
	if err != nil {
		return o.mapError(err)
	}

	eventKind := EventDriverSucceeded
	taskStatus := TaskStatusCompleted
	if result.State == PollStateFailed {
		eventKind = EventDriverFailed
		taskStatus = TaskStatusFailed
	}

	resource, err = o.applyEvent(ctx, resource, Event{
		Kind:     eventKind,
		Action:   task.Action,
		Actor:    "system",
		Detail:   result.Detail,
		Metadata: result.Metadata,
	}, result.ProviderRef)
	if err != nil {
		return err
	}

	if err := task.TransitionTo(taskStatus, result.Detail, o.currentTime()); err != nil {
		return o.mapError(err)
	}
	task.NextPollAt = nil
	if _, err := o.tasks.Update(ctx, task); err != nil {
		return o.mapError(err)
	}
	if o.scheduler != nil {
		o.scheduler.Cancel(task.ID)
	}

	o.publishTerminal(ctx, eventKind, task.Action, resource)
	return nil
}

// FailTask force-terminates a task: permanent driver errors, credential
// failures, or attempt-cap exhaustion. The resource surfaces a human-readable
// last error, never a raw provider payload.
func (o *Orchestrator) FailTask(ctx context.Context, taskID string, cause error, timedOut bool) error {
	task, err := o.tasks.Get(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return o.mapError(err)
	}
	if task.Status.Terminal() {
		return nil
	}
	resource, err := o.resources.Get(ctx, task.ResourceID)
	if err != nil {
		return o.mapError(err)
	}

	detail := failureDetail(cause, timedOut, task.Attempts)
	eventKind := EventDriverFailed
	if timedOut {
		eventKind = EventDriverTimedOut
	}

	resource, err = o.applyEvent(ctx, resource, Event{
		Kind:   eventKind,
		Action: task.Action,
		Actor:  "system",
		Detail: detail,
	}, "")
	if err != nil && !errors.Is(err, ErrInvalidResourceStatusTransition) {
		return err
	}
	if err != nil {
		// No legal failure edge from the current status (deprovisioning, for
		// example); the task still closes so it is not polled forever.
		o.logger.Warn("failure not applicable to resource status",
			"resource_id", resource.ID, "status", resource.Status, "task_id", task.ID)
	}

	if err := task.TransitionTo(TaskStatusFailed, detail, o.currentTime()); err != nil {
		return o.mapError(err)
	}
	task.NextPollAt = nil
	if _, err := o.tasks.Update(ctx, task); err != nil {
		return o.mapError(err)
	}
	if o.scheduler != nil {
		o.scheduler.Cancel(task.ID)
	}

	o.publishTerminal(ctx, eventKind, task.Action, resource)
	return nil
}

func (o *Orchestrator) cancelOutstandingTasks(ctx context.Context, resource Resource, reason string) {
	active, err := o.tasks.ListActive(ctx, resource.ID)
	if err != nil {
		o.logger.Warn("listing active tasks failed", "resource_id", resource.ID, "error", err)
		return
	}
	now := o.currentTime()
	for _, task := range active {
		if task.Action == TaskActionDeprovision {
			continue
		}
		if err := task.TransitionTo(TaskStatusFailed, reason, now); err != nil {
			continue
		}
		task.NextPollAt = nil
		if _, err := o.tasks.Update(ctx, task); err != nil {
			o.logger.Warn("cancelling task failed", "task_id", task.ID, "error", err)
			continue
		}
		if o.scheduler != nil {
			o.scheduler.Cancel(task.ID)
		}
	}
}

// applyEvent runs the pure transition and applies it together with its audit
// row inside the store's transactional boundary.
func (o *Orchestrator) applyEvent(
	ctx context.Context,
	resource Resource,
	event Event,
	providerRef string,
) (Resource, error) {
	result, err := Transition(resource, event, o.currentTime())
	if err != nil {
		return resource, o.mapError(err)
	}
	if ref := strings.TrimSpace(providerRef); ref != "" && o.config.HashProviderRefs {
		result.Audit.Metadata["provider_ref_hash"] = HashProviderRef(ref)
	}

	updated, err := o.resources.ApplyTransition(ctx, ApplyTransitionInput{
		ResourceID:  resource.ID,
		Result:      result,
		ProviderRef: strings.TrimSpace(providerRef),
		LastError:   strings.TrimSpace(event.Detail),
	})
	if err != nil {
		return resource, o.mapError(err)
	}
	o.metrics.IncCounter(ctx, "provision.transition", 1, map[string]string{
		"from": string(result.From),
		"to":   string(result.To),
	})
	return updated, nil
}

func (o *Orchestrator) publishTerminal(ctx context.Context, kind EventKind, action TaskAction, resource Resource) {
	switch {
	case resource.Status == ResourceStatusFailed:
		o.publish(ctx, EventResourceFailed, resource, map[string]any{
			"action": string(action),
			"detail": resource.LastError,
		})
	case kind == EventDriverSucceeded && action == TaskActionProvision:
		o.publish(ctx, EventResourceProvisioned, resource, nil)
	case kind == EventDriverSucceeded && action == TaskActionSuspend:
		o.publish(ctx, EventResourceSuspended, resource, nil)
	case kind == EventDriverSucceeded && action == TaskActionDeprovision:
		o.publish(ctx, EventResourceDeprovisioned, resource, nil)
	}
}

func (o *Orchestrator) publish(ctx context.Context, name string, resource Resource, payload map[string]any) {
	if o.bus == nil {
		return
	}
	event := LifecycleEvent{
		Name:       name,
		DriverID:   resource.DriverID,
		ResourceID: resource.ID,
		OrderRef:   resource.OrderRef,
		OccurredAt: o.currentTime(),
		Payload:    payload,
	}
	if err := o.bus.Publish(ctx, event); err != nil {
		o.logger.Warn("lifecycle publish failed", "event", name, "resource_id", resource.ID, "error", err)
	}
}

func (o *Orchestrator) secretFor(ctx context.Context, resource Resource) (DriverSecret, error) {
	if o.vault == nil {
		return DriverSecret{}, nil
	}
	return o.vault.ResolveForDriver(ctx, resource.DriverID, resource.UserID)
}

func (o *Orchestrator) buildSpec(resource Resource) ResourceSpec {
	spec := ResourceSpec{
		OrderRef: resource.OrderRef,
		UserID:   resource.UserID,
		PlanCode: resource.PlanCode,
		Region:   resource.Region,
		Config:   map[string]any{},
	}
	for key, value := range resource.Spec {
		if key == "provider_plan" {
			spec.ProviderPlan = strings.TrimSpace(fmt.Sprint(value))
			continue
		}
		spec.Config[key] = value
	}
	return spec
}

func (o *Orchestrator) GetResource(ctx context.Context, id string) (Resource, error) {
	if o == nil {
		return Resource{}, fmt.Errorf("core: orchestrator is nil")
	}
	resource, err := o.resources.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Resource{}, o.mapError(err)
	}
	return resource, nil
}

func (o *Orchestrator) ListResources(ctx context.Context, filter ResourceFilter) ([]Resource, error) {
	if o == nil {
		return nil, fmt.Errorf("core: orchestrator is nil")
	}
	resources, err := o.resources.List(ctx, filter)
	if err != nil {
		return nil, o.mapError(err)
	}
	return resources, nil
}

func (o *Orchestrator) GetTask(ctx context.Context, id string) (ProvisionTask, error) {
	if o == nil {
		return ProvisionTask{}, fmt.Errorf("core: orchestrator is nil")
	}
	task, err := o.tasks.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return ProvisionTask{}, o.mapError(err)
	}
	return task, nil
}

func (o *Orchestrator) ListAudit(ctx context.Context, resourceID string) ([]AuditEntry, error) {
	if o == nil {
		return nil, fmt.Errorf("core: orchestrator is nil")
	}
	entries, err := o.audits.ListByResource(ctx, strings.TrimSpace(resourceID))
	if err != nil {
		return nil, o.mapError(err)
	}
	return entries, nil
}

func (o *Orchestrator) mapError(err error) error {
	if err == nil {
		return nil
	}
	if o == nil || o.errorMapper == nil {
		return err
	}
	return o.errorMapper(err)
}

func (o *Orchestrator) currentTime() time.Time {
	if o != nil && o.now != nil {
		return o.now().UTC()
	}
	return time.Now().UTC()
}

func buildSpecPayload(planMap PlanMap, req KickRequest) map[string]any {
	payload := map[string]any{
		"provider_plan": planMap.ProviderPlan,
	}
	for key, value := range planMap.Config {
		payload[key] = value
	}
	return payload
}

func failureDetail(cause error, timedOut bool, attempts int) string {
	if timedOut {
		return fmt.Sprintf("gave up after %d attempts: %s", attempts, compactError(cause))
	}
	return compactError(cause)
}

func compactError(err error) string {
	if err == nil {
		return "provider reported failure"
	}
	return strings.TrimSpace(err.Error())
}
