package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// TaskCompleter receives the terminal outcome of a poll or webhook and drives
// the state machine; the orchestrator implements it so both delivery paths
// share one completion authority.
type TaskCompleter interface {
	CompleteTask(ctx context.Context, taskID string, result PollResult) error
	FailTask(ctx context.Context, taskID string, cause error, timedOut bool) error
}

// TaskPoller advances a non-terminal ProvisionTask toward a terminal status
// with scheduled, backed-off polling. Webhook deliveries win: the poller
// re-reads task status before every driver call and skips terminal tasks.
type TaskPoller struct {
	Tasks     TaskStore
	Resources ResourceStore
	Registry  Registry
	Breakers  *BreakerSet
	Scheduler TaskScheduler
	Completer TaskCompleter
	Config    PollConfig
	Logger    Logger
	Now       func() time.Time
	// Rand returns a value in [0, 1) for jitter; replaceable in tests.
	Rand func() float64
}

func NewTaskPoller(
	tasks TaskStore,
	resources ResourceStore,
	registry Registry,
	breakers *BreakerSet,
	scheduler TaskScheduler,
	completer TaskCompleter,
	config PollConfig,
	logger Logger,
) *TaskPoller {
	return &TaskPoller{
		Tasks:     tasks,
		Resources: resources,
		Registry:  registry,
		Breakers:  breakers,
		Scheduler: scheduler,
		Completer: completer,
		Config:    config.withDefaults(),
		Logger:    logger,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		Rand: rand.Float64,
	}
}

func (p *TaskPoller) SchedulePoll(ctx context.Context, task ProvisionTask, delay time.Duration) error {
	if p == nil || p.Scheduler == nil {
		return fmt.Errorf("core: task poller requires a scheduler")
	}
	if task.Status.Terminal() {
		return nil
	}
	return p.Scheduler.Schedule(ctx, TaskMessage{
		Kind:       TaskKindPoll,
		TaskID:     task.ID,
		ResourceID: task.ResourceID,
	}, delay)
}

// CheckOnce performs one poll cycle for the task: skip if terminal, call the
// driver through the breaker, and either complete, fail, or reschedule.
func (p *TaskPoller) CheckOnce(ctx context.Context, taskID string) error {
	if p == nil || p.Tasks == nil || p.Resources == nil || p.Registry == nil || p.Completer == nil {
		return fmt.Errorf("core: task poller is not configured")
	}
	task, err := p.Tasks.Get(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		// A webhook already delivered the terminal result.
		return nil
	}
	if strings.TrimSpace(task.ProviderTaskID) == "" {
		return fmt.Errorf("core: task %s has no provider task id to poll", task.ID)
	}

	resource, err := p.Resources.Get(ctx, task.ResourceID)
	if err != nil {
		return err
	}
	driver, ok := p.Registry.Get(resource.DriverID)
	if !ok {
		return p.Completer.FailTask(ctx, task.ID, fmt.Errorf("%w: %s", ErrDriverNotRegistered, resource.DriverID), false)
	}

	task.Attempts++
	now := p.now()
	task.UpdatedAt = now
	next := now.Add(p.NextDelay(task.Attempts))
	task.NextPollAt = &next
	task, err = p.Tasks.Update(ctx, task)
	if err != nil {
		return err
	}

	var result PollResult
	callErr := p.callThroughBreaker(resource.DriverID, func() error {
		var pollErr error
		result, pollErr = driver.Poll(ctx, task.ProviderTaskID)
		return pollErr
	})
	if callErr != nil {
		if IsTransient(callErr) || errors.Is(callErr, ErrCircuitOpen) {
			return p.retryOrExhaust(ctx, task, callErr)
		}
		return p.Completer.FailTask(ctx, task.ID, callErr, false)
	}

	switch result.State {
	case PollStatePending:
		return p.retryOrExhaust(ctx, task, nil)
	case PollStateCompleted:
		return p.Completer.CompleteTask(ctx, task.ID, result)
	case PollStateFailed:
		if result.Transient {
			return p.retryOrExhaust(ctx, task, fmt.Errorf("core: transient provider failure: %s", result.Detail))
		}
		return p.Completer.CompleteTask(ctx, task.ID, result)
	default:
		return fmt.Errorf("core: driver %s returned unknown poll state %q", resource.DriverID, result.State)
	}
}

func (p *TaskPoller) retryOrExhaust(ctx context.Context, task ProvisionTask, cause error) error {
	if task.Attempts >= p.Config.MaxAttempts {
		if cause == nil {
			cause = fmt.Errorf("core: poll attempt cap reached after %d attempts", task.Attempts)
		}
		return p.Completer.FailTask(ctx, task.ID, cause, true)
	}
	if cause != nil && p.Logger != nil {
		p.Logger.Warn("poll attempt failed, rescheduling",
			"task_id", task.ID, "attempt", task.Attempts, "error", cause)
	}
	return p.SchedulePoll(ctx, task, p.NextDelay(task.Attempts))
}

// NextDelay computes base * 2^(attempt-1) capped at the configured maximum,
// plus a bounded random offset so herds of tasks sharing a driver spread out.
// Config is normalized by NewTaskPoller, as the breaker does in its
// constructor.
func (p *TaskPoller) NextDelay(attempt int) time.Duration {
	cfg := p.Config
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	jitter := 0.0
	if cfg.JitterRatio > 0 {
		random := rand.Float64
		if p != nil && p.Rand != nil {
			random = p.Rand
		}
		jitter = delay * cfg.JitterRatio * random()
	}
	return time.Duration(delay + jitter)
}

func (p *TaskPoller) callThroughBreaker(driverID string, fn func() error) error {
	if p.Breakers == nil {
		return fn()
	}
	return p.Breakers.Call(driverID, fn)
}

func (p *TaskPoller) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
