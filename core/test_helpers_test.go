package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryResourceStore struct {
	mu        sync.Mutex
	resources map[string]Resource
	audits    *memoryAuditStore
	now       func() time.Time
}

func newMemoryResourceStore(audits *memoryAuditStore, now func() time.Time) *memoryResourceStore {
	return &memoryResourceStore{
		resources: map[string]Resource{},
		audits:    audits,
		now:       now,
	}
}

func (s *memoryResourceStore) Create(ctx context.Context, in CreateResourceInput) (Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	resource := Resource{
		ID:          uuid.NewString(),
		OrderRef:    in.OrderRef,
		UserID:      in.UserID,
		DriverID:    in.DriverID,
		PlanCode:    in.PlanCode,
		Region:      in.Region,
		Status:      ResourceStatusPending,
		Spec:        in.Spec,
		LineItemRef: in.LineItemRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.resources[resource.ID] = resource
	return resource, nil
}

func (s *memoryResourceStore) Get(ctx context.Context, id string) (Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resource, ok := s.resources[id]
	if !ok {
		return Resource{}, fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}
	return resource, nil
}

func (s *memoryResourceStore) FindByOrderRef(ctx context.Context, orderRef string) (Resource, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, resource := range s.resources {
		if resource.OrderRef == orderRef {
			return resource, true, nil
		}
	}
	return Resource{}, false, nil
}

func (s *memoryResourceStore) List(ctx context.Context, filter ResourceFilter) ([]Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []Resource
	for _, resource := range s.resources {
		if filter.Matches(resource) {
			matched = append(matched, resource)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

func (s *memoryResourceStore) ApplyTransition(ctx context.Context, in ApplyTransitionInput) (Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resource, ok := s.resources[in.ResourceID]
	if !ok {
		return Resource{}, fmt.Errorf("%w: %s", ErrResourceNotFound, in.ResourceID)
	}
	if resource.Status != in.Result.From {
		return Resource{}, fmt.Errorf(
			"%w: status moved from %s while applying %s", ErrInvalidResourceStatusTransition,
			in.Result.From, in.Result.To,
		)
	}
	resource.Status = in.Result.To
	resource.UpdatedAt = s.now()
	if in.ProviderRef != "" {
		resource.ProviderRef = in.ProviderRef
	}
	if in.LastError != "" {
		resource.LastError = in.LastError
	}
	if resource.Status == ResourceStatusActive {
		resource.LastError = ""
	}
	s.resources[resource.ID] = resource

	if s.audits != nil {
		if _, err := s.audits.Record(ctx, in.Result.Audit); err != nil {
			return Resource{}, err
		}
	}
	return resource, nil
}

func (s *memoryResourceStore) MarkSynced(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resource, ok := s.resources[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}
	resource.LastSyncedAt = &at
	s.resources[id] = resource
	return nil
}

type memoryTaskStore struct {
	mu    sync.Mutex
	tasks map[string]ProvisionTask
	now   func() time.Time
}

func newMemoryTaskStore(now func() time.Time) *memoryTaskStore {
	return &memoryTaskStore{tasks: map[string]ProvisionTask{}, now: now}
}

func (s *memoryTaskStore) Create(ctx context.Context, in CreateTaskInput) (ProvisionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	task := ProvisionTask{
		ID:         uuid.NewString(),
		ResourceID: in.ResourceID,
		Action:     in.Action,
		Status:     TaskStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.tasks[task.ID] = task
	return task, nil
}

func (s *memoryTaskStore) Get(ctx context.Context, id string) (ProvisionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return ProvisionTask{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task, nil
}

func (s *memoryTaskStore) FindActive(ctx context.Context, resourceID string, action TaskAction) (ProvisionTask, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.tasks {
		if task.ResourceID == resourceID && task.Action == action && !task.Status.Terminal() {
			return task, true, nil
		}
	}
	return ProvisionTask{}, false, nil
}

func (s *memoryTaskStore) FindByProviderTaskID(ctx context.Context, driverID string, providerTaskID string) (ProvisionTask, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.tasks {
		if task.ProviderTaskID == providerTaskID && providerTaskID != "" {
			return task, true, nil
		}
	}
	return ProvisionTask{}, false, nil
}

func (s *memoryTaskStore) ListActive(ctx context.Context, resourceID string) ([]ProvisionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []ProvisionTask
	for _, task := range s.tasks {
		if task.ResourceID == resourceID && !task.Status.Terminal() {
			active = append(active, task)
		}
	}
	return active, nil
}

func (s *memoryTaskStore) Update(ctx context.Context, task ProvisionTask) (ProvisionTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return ProvisionTask{}, fmt.Errorf("%w: %s", ErrTaskNotFound, task.ID)
	}
	s.tasks[task.ID] = task
	return task, nil
}

type memoryAuditStore struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func newMemoryAuditStore() *memoryAuditStore {
	return &memoryAuditStore{}
}

func (s *memoryAuditStore) Record(ctx context.Context, entry AuditEntry) (AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *memoryAuditStore) ListByResource(ctx context.Context, resourceID string) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []AuditEntry
	for _, entry := range s.entries {
		if entry.ResourceID == resourceID {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

type memoryPlanMapStore struct {
	mu    sync.Mutex
	plans map[string]PlanMap
}

func newMemoryPlanMapStore(plans ...PlanMap) *memoryPlanMapStore {
	store := &memoryPlanMapStore{plans: map[string]PlanMap{}}
	for _, plan := range plans {
		store.plans[plan.PlanCode] = plan
	}
	return store
}

func (s *memoryPlanMapStore) ResolvePlan(ctx context.Context, planCode string) (PlanMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[planCode]
	if !ok || !plan.Active {
		return PlanMap{}, fmt.Errorf("%w: %s", ErrPlanMapNotFound, planCode)
	}
	return plan, nil
}

type memoryCredentialStore struct {
	mu          sync.Mutex
	credentials map[string]Credential
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{credentials: map[string]Credential{}}
}

func (s *memoryCredentialStore) Create(ctx context.Context, in StoreCredentialInput) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	credential := Credential{
		ID:                uuid.NewString(),
		Name:              in.Name,
		DriverID:          in.DriverID,
		Scope:             in.Scope,
		UserID:            in.UserID,
		EncryptedPayload:  in.EncryptedPayload,
		EncryptionKeyID:   in.EncryptionKeyID,
		EncryptionVersion: in.EncryptionVersion,
		CreatedBy:         in.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.credentials[credential.ID] = credential
	return credential, nil
}

func (s *memoryCredentialStore) Get(ctx context.Context, id string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credential, ok := s.credentials[id]
	if !ok {
		return Credential{}, fmt.Errorf("core: credential %s not found", id)
	}
	return credential, nil
}

func (s *memoryCredentialStore) FindForDriver(ctx context.Context, driverID string, userID string) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []Credential
	for _, credential := range s.credentials {
		if credential.DriverID != driverID {
			continue
		}
		if credential.Scope == CredentialScopeUser && credential.UserID != userID {
			continue
		}
		matched = append(matched, credential)
	}
	return matched, nil
}

// syncScheduler runs scheduled messages inline when drained, recording every
// scheduled message so tests can assert ordering and delays.
type syncScheduler struct {
	mu        sync.Mutex
	runner    TaskRunner
	queue     []scheduledMessage
	cancelled []string
}

type scheduledMessage struct {
	msg   TaskMessage
	delay time.Duration
}

func newSyncScheduler() *syncScheduler {
	return &syncScheduler{}
}

func (s *syncScheduler) Schedule(ctx context.Context, msg TaskMessage, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, scheduledMessage{msg: msg, delay: delay})
	return nil
}

func (s *syncScheduler) Cancel(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, taskID)
	kept := s.queue[:0]
	removed := false
	for _, item := range s.queue {
		if item.msg.TaskID == taskID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	s.queue = kept
	return removed
}

// step runs exactly one queued message.
func (s *syncScheduler) step(ctx context.Context) error {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("syncScheduler: queue is empty")
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	runner := s.runner
	s.mu.Unlock()
	if runner == nil {
		return fmt.Errorf("syncScheduler: no runner wired")
	}
	return runner.Run(ctx, next.msg)
}

// drain runs queued messages until the queue is empty or maxSteps is reached.
func (s *syncScheduler) drain(ctx context.Context, maxSteps int) error {
	for i := 0; i < maxSteps; i++ {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return nil
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		runner := s.runner
		s.mu.Unlock()
		if runner == nil {
			return fmt.Errorf("syncScheduler: no runner wired")
		}
		if err := runner.Run(ctx, next.msg); err != nil {
			return err
		}
	}
	return fmt.Errorf("syncScheduler: queue not drained after %d steps", maxSteps)
}

func (s *syncScheduler) pendingKinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kinds []string
	for _, item := range s.queue {
		kinds = append(kinds, item.msg.Kind)
	}
	return kinds
}

// fakeDriver scripts provider behavior per action and per poll attempt, and
// records every idempotency key it was handed.
type fakeDriver struct {
	mu sync.Mutex

	id           string
	kind         DriverKind
	capabilities []CapabilityDescriptor

	provisionErrs   []error
	pollResults     []PollResult
	pollErrs        []error
	provisionCalls  int
	pollCalls       int
	lifecycleCalls  map[TaskAction]int
	idempotencyKeys []string
	secrets         []DriverSecret

	verifyErr  error
	webhookRef string
	webhookOut PollResult
}

func newFakeDriver(id string) *fakeDriver {
	return &fakeDriver{
		id:   id,
		kind: DriverKindCompute,
		capabilities: []CapabilityDescriptor{
			{Name: CapabilityProvision},
		},
		lifecycleCalls: map[TaskAction]int{},
	}
}

func (d *fakeDriver) ID() string       { return d.id }
func (d *fakeDriver) Kind() DriverKind { return d.kind }

func (d *fakeDriver) Capabilities() []CapabilityDescriptor {
	return d.capabilities
}

func (d *fakeDriver) Provision(ctx context.Context, call ProvisionCall) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idempotencyKeys = append(d.idempotencyKeys, call.IdempotencyKey)
	d.secrets = append(d.secrets, call.Secret)
	attempt := d.provisionCalls
	d.provisionCalls++
	if attempt < len(d.provisionErrs) && d.provisionErrs[attempt] != nil {
		return "", d.provisionErrs[attempt]
	}
	return "ptask-" + call.Resource.OrderRef, nil
}

func (d *fakeDriver) Poll(ctx context.Context, providerTaskID string) (PollResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	attempt := d.pollCalls
	d.pollCalls++
	if attempt < len(d.pollErrs) && d.pollErrs[attempt] != nil {
		return PollResult{}, d.pollErrs[attempt]
	}
	if attempt < len(d.pollResults) {
		return d.pollResults[attempt], nil
	}
	return PollResult{State: PollStatePending}, nil
}

func (d *fakeDriver) lifecycle(action TaskAction, key string, secret DriverSecret) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lifecycleCalls[action]++
	d.idempotencyKeys = append(d.idempotencyKeys, key)
	d.secrets = append(d.secrets, secret)
	return "ptask-" + string(action), nil
}

func (d *fakeDriver) Deprovision(ctx context.Context, call LifecycleCall) (string, error) {
	return d.lifecycle(TaskActionDeprovision, call.IdempotencyKey, call.Secret)
}

func (d *fakeDriver) Suspend(ctx context.Context, call LifecycleCall) (string, error) {
	return d.lifecycle(TaskActionSuspend, call.IdempotencyKey, call.Secret)
}

func (d *fakeDriver) Resume(ctx context.Context, call LifecycleCall) (string, error) {
	return d.lifecycle(TaskActionResume, call.IdempotencyKey, call.Secret)
}

func (d *fakeDriver) Resize(ctx context.Context, call ProvisionCall) (string, error) {
	return d.lifecycle(TaskActionResize, call.IdempotencyKey, call.Secret)
}

func (d *fakeDriver) VerifySignature(ctx context.Context, req InboundRequest) error {
	return d.verifyErr
}

func (d *fakeDriver) HandleWebhook(ctx context.Context, req InboundRequest) (string, PollResult, error) {
	return d.webhookRef, d.webhookOut, nil
}

func (d *fakeDriver) withWebhooks() *fakeDriver {
	d.capabilities = append(d.capabilities, CapabilityDescriptor{Name: CapabilityWebhooks})
	return d
}

type capturedEvents struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (c *capturedEvents) Handle(ctx context.Context, event LifecycleEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturedEvents) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for _, event := range c.events {
		names = append(names, event.Name)
	}
	return names
}

type plainSecretProvider struct{}

func (plainSecretProvider) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	return append([]byte("enc:"), plaintext...), nil
}

func (plainSecretProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 4 || string(ciphertext[:4]) != "enc:" {
		return nil, fmt.Errorf("bad ciphertext")
	}
	return ciphertext[4:], nil
}

type orchestratorHarness struct {
	orchestrator *Orchestrator
	scheduler    *syncScheduler
	driver       *fakeDriver
	resources    *memoryResourceStore
	tasks        *memoryTaskStore
	audits       *memoryAuditStore
	events       *capturedEvents
	clock        *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newOrchestratorHarness(t interface{ Fatalf(string, ...any) }, driver *fakeDriver, extra ...Option) *orchestratorHarness {
	clock := newFakeClock()
	audits := newMemoryAuditStore()
	resources := newMemoryResourceStore(audits, clock.Now)
	tasks := newMemoryTaskStore(clock.Now)
	scheduler := newSyncScheduler()
	events := &capturedEvents{}

	planMaps := newMemoryPlanMapStore(PlanMap{
		ID:           uuid.NewString(),
		PlanCode:     "vps-small",
		DriverID:     driver.ID(),
		ProviderPlan: "compute.small",
		Region:       "us-east-1",
		Config:       map[string]any{"cpus": 2},
		Active:       true,
	})

	registry := NewDriverRegistry()
	if err := registry.Register(driver); err != nil {
		t.Fatalf("register driver: %v", err)
	}

	options := []Option{
		WithRegistry(registry),
		WithScheduler(scheduler),
		WithResourceStore(resources),
		WithTaskStore(tasks),
		WithAuditStore(audits),
		WithPlanMapStore(planMaps),
		WithNow(clock.Now),
	}
	options = append(options, extra...)

	orchestrator, err := NewOrchestrator(Config{}, options...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	orchestrator.bus.Subscribe(events)
	orchestrator.poller.Rand = func() float64 { return 0 }
	scheduler.runner = orchestrator

	return &orchestratorHarness{
		orchestrator: orchestrator,
		scheduler:    scheduler,
		driver:       driver,
		resources:    resources,
		tasks:        tasks,
		audits:       audits,
		events:       events,
		clock:        clock,
	}
}
