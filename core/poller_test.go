package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type recordingCompleter struct {
	completed []PollResult
	failed    []error
	timedOut  []bool
}

func (c *recordingCompleter) CompleteTask(ctx context.Context, taskID string, result PollResult) error {
	c.completed = append(c.completed, result)
	return nil
}

func (c *recordingCompleter) FailTask(ctx context.Context, taskID string, cause error, timedOut bool) error {
	c.failed = append(c.failed, cause)
	c.timedOut = append(c.timedOut, timedOut)
	return nil
}

func newPollerFixture(t *testing.T, driver *fakeDriver, config PollConfig) (*TaskPoller, *syncScheduler, *recordingCompleter, ProvisionTask) {
	t.Helper()
	ctx := context.Background()
	clock := newFakeClock()
	audits := newMemoryAuditStore()
	resources := newMemoryResourceStore(audits, clock.Now)
	tasks := newMemoryTaskStore(clock.Now)
	scheduler := newSyncScheduler()
	completer := &recordingCompleter{}

	registry := NewDriverRegistry()
	if err := registry.Register(driver); err != nil {
		t.Fatalf("register driver: %v", err)
	}

	resource, err := resources.Create(ctx, CreateResourceInput{
		OrderRef: "ord-1",
		DriverID: driver.ID(),
		PlanCode: "vps-small",
	})
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}
	task, err := tasks.Create(ctx, CreateTaskInput{ResourceID: resource.ID, Action: TaskActionProvision})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	task.ProviderTaskID = "ptask-1"
	if task, err = tasks.Update(ctx, task); err != nil {
		t.Fatalf("update task: %v", err)
	}

	poller := NewTaskPoller(tasks, resources, registry, NewBreakerSet(BreakerConfig{}), scheduler, completer, config, nil)
	poller.Now = clock.Now
	poller.Rand = func() float64 { return 0 }
	return poller, scheduler, completer, task
}

func TestNextDelay_ExponentialWithCap(t *testing.T) {
	poller := &TaskPoller{Config: PollConfig{
		BaseDelay:   2 * time.Second,
		MaxDelay:    5 * time.Minute,
		JitterRatio: 0,
		MaxAttempts: 10,
	}}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{8, 256 * time.Second},
		{9, 5 * time.Minute},
		{20, 5 * time.Minute},
	}
	for _, tc := range cases {
		if got := poller.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestNextDelay_JitterBounded(t *testing.T) {
	poller := &TaskPoller{Config: PollConfig{
		BaseDelay:   2 * time.Second,
		MaxDelay:    5 * time.Minute,
		JitterRatio: 0.5,
		MaxAttempts: 10,
	}}
	poller.Rand = func() float64 { return 1 }

	// Worst case jitter adds half the computed delay.
	if got := poller.NextDelay(1); got != 3*time.Second {
		t.Fatalf("expected 3s with max jitter, got %s", got)
	}
	poller.Rand = func() float64 { return 0 }
	if got := poller.NextDelay(1); got != 2*time.Second {
		t.Fatalf("expected 2s without jitter, got %s", got)
	}
}

func TestCheckOnce_PendingReschedules(t *testing.T) {
	driver := newFakeDriver("fake")
	driver.pollResults = []PollResult{{State: PollStatePending}}
	poller, scheduler, completer, task := newPollerFixture(t, driver, PollConfig{})

	if err := poller.CheckOnce(context.Background(), task.ID); err != nil {
		t.Fatalf("check once: %v", err)
	}
	if len(completer.completed) != 0 || len(completer.failed) != 0 {
		t.Fatalf("pending poll must not complete or fail the task")
	}
	kinds := scheduler.pendingKinds()
	if len(kinds) != 1 || kinds[0] != TaskKindPoll {
		t.Fatalf("expected one rescheduled poll, got %v", kinds)
	}

	stored, err := poller.Tasks.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Attempts != 1 {
		t.Fatalf("expected attempt recorded before the driver call, got %d", stored.Attempts)
	}
	if stored.NextPollAt == nil {
		t.Fatalf("expected next poll time persisted")
	}
}

func TestCheckOnce_CompletedDelegates(t *testing.T) {
	driver := newFakeDriver("fake")
	driver.pollResults = []PollResult{{State: PollStateCompleted, ProviderRef: "vm-99"}}
	poller, _, completer, task := newPollerFixture(t, driver, PollConfig{})

	if err := poller.CheckOnce(context.Background(), task.ID); err != nil {
		t.Fatalf("check once: %v", err)
	}
	if len(completer.completed) != 1 {
		t.Fatalf("expected completion, got %d", len(completer.completed))
	}
	if completer.completed[0].ProviderRef != "vm-99" {
		t.Fatalf("unexpected provider ref %q", completer.completed[0].ProviderRef)
	}
}

func TestCheckOnce_PermanentFailureDelegates(t *testing.T) {
	driver := newFakeDriver("fake")
	driver.pollResults = []PollResult{{State: PollStateFailed, Detail: "no capacity"}}
	poller, _, completer, task := newPollerFixture(t, driver, PollConfig{})

	if err := poller.CheckOnce(context.Background(), task.ID); err != nil {
		t.Fatalf("check once: %v", err)
	}
	if len(completer.completed) != 1 || completer.completed[0].State != PollStateFailed {
		t.Fatalf("permanent failure must flow through the completion path")
	}
}

func TestCheckOnce_TransientFailureRetries(t *testing.T) {
	driver := newFakeDriver("fake")
	driver.pollErrs = []error{Transient(fmt.Errorf("gateway timeout"))}
	poller, scheduler, completer, task := newPollerFixture(t, driver, PollConfig{})

	if err := poller.CheckOnce(context.Background(), task.ID); err != nil {
		t.Fatalf("check once: %v", err)
	}
	if len(completer.failed) != 0 {
		t.Fatalf("transient error must not fail the task")
	}
	if kinds := scheduler.pendingKinds(); len(kinds) != 1 {
		t.Fatalf("expected a rescheduled poll, got %v", kinds)
	}
}

func TestCheckOnce_AttemptCapForcesFailure(t *testing.T) {
	driver := newFakeDriver("fake")
	poller, _, completer, task := newPollerFixture(t, driver, PollConfig{MaxAttempts: 3})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := poller.CheckOnce(ctx, task.ID); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}
	if len(completer.failed) != 1 {
		t.Fatalf("expected forced failure at the cap, got %d", len(completer.failed))
	}
	if !completer.timedOut[0] {
		t.Fatalf("cap exhaustion must be reported as timed out")
	}
	if driver.pollCalls != 3 {
		t.Fatalf("expected 3 poll calls, got %d", driver.pollCalls)
	}
}

func TestCheckOnce_TerminalTaskSkipsDriver(t *testing.T) {
	driver := newFakeDriver("fake")
	poller, _, completer, task := newPollerFixture(t, driver, PollConfig{})

	ctx := context.Background()
	stored, err := poller.Tasks.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if err := stored.TransitionTo(TaskStatusCompleted, "", time.Now().UTC()); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if _, err := poller.Tasks.Update(ctx, stored); err != nil {
		t.Fatalf("update task: %v", err)
	}

	if err := poller.CheckOnce(ctx, task.ID); err != nil {
		t.Fatalf("check once: %v", err)
	}
	if driver.pollCalls != 0 {
		t.Fatalf("terminal task must not reach the driver, got %d calls", driver.pollCalls)
	}
	if len(completer.completed) != 0 || len(completer.failed) != 0 {
		t.Fatalf("terminal task must be a no-op")
	}
}

func TestCheckOnce_CircuitOpenRetriesWithoutDriverCall(t *testing.T) {
	driver := newFakeDriver("fake")
	poller, scheduler, completer, task := newPollerFixture(t, driver, PollConfig{})
	breaker := poller.Breakers.For(driver.ID())
	for i := 0; i < 20; i++ {
		breaker.RecordFailure()
	}
	if breaker.State() != BreakerStateOpen {
		t.Fatalf("expected open breaker, got %s", breaker.State())
	}

	if err := poller.CheckOnce(context.Background(), task.ID); err != nil {
		t.Fatalf("check once: %v", err)
	}
	if driver.pollCalls != 0 {
		t.Fatalf("open breaker must fail fast before the driver, got %d calls", driver.pollCalls)
	}
	if len(completer.failed) != 0 {
		t.Fatalf("open breaker is transient, task must not fail")
	}
	if kinds := scheduler.pendingKinds(); len(kinds) != 1 {
		t.Fatalf("expected a rescheduled poll, got %v", kinds)
	}
}

func TestCheckOnce_UnregisteredDriverFailsTask(t *testing.T) {
	driver := newFakeDriver("fake")
	poller, _, completer, task := newPollerFixture(t, driver, PollConfig{})
	poller.Registry = NewDriverRegistry()

	if err := poller.CheckOnce(context.Background(), task.ID); err != nil {
		t.Fatalf("check once: %v", err)
	}
	if len(completer.failed) != 1 {
		t.Fatalf("expected task failure for unregistered driver")
	}
	if !errors.Is(completer.failed[0], ErrDriverNotRegistered) {
		t.Fatalf("expected ErrDriverNotRegistered, got: %v", completer.failed[0])
	}
}
