package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// TaskRunner consumes scheduled task messages; the orchestrator's poller and
// dispatch paths sit behind this when wired through a scheduler.
type TaskRunner interface {
	Run(ctx context.Context, msg TaskMessage) error
}

type TaskRunnerFunc func(ctx context.Context, msg TaskMessage) error

func (f TaskRunnerFunc) Run(ctx context.Context, msg TaskMessage) error {
	return f(ctx, msg)
}

// MemoryScheduler executes scheduled task messages on in-process timers. It
// backs single-process deployments and tests; durable deployments wire the
// go-job queue adapter instead. Delivery is at-least-once by contract either
// way: consumers rely on persisted task status, not on the scheduler, for
// idempotent effect.
type MemoryScheduler struct {
	mu     sync.Mutex
	runner TaskRunner
	logger Logger
	timers map[string]*time.Timer
	wg     sync.WaitGroup
	closed bool
}

func NewMemoryScheduler(runner TaskRunner, logger Logger) *MemoryScheduler {
	return &MemoryScheduler{
		runner: runner,
		logger: logger,
		timers: map[string]*time.Timer{},
	}
}

func (s *MemoryScheduler) Schedule(ctx context.Context, msg TaskMessage, delay time.Duration) error {
	if s == nil || s.runner == nil {
		return fmt.Errorf("core: scheduler is not configured")
	}
	key := schedulerKey(msg)
	if key == "" {
		return fmt.Errorf("core: task message requires kind and task id")
	}
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("core: scheduler is shut down")
	}
	if existing, ok := s.timers[key]; ok {
		if existing.Stop() {
			s.wg.Done()
		}
	}
	s.wg.Add(1)
	s.timers[key] = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		if err := s.runner.Run(context.WithoutCancel(ctx), msg); err != nil && s.logger != nil {
			s.logger.Warn("scheduled task failed", "kind", msg.Kind, "task_id", msg.TaskID, "error", err)
		}
	})
	return nil
}

// Cancel drops any still-pending timer for the task. Work already started is
// not interrupted; the consumer's terminal-status check covers that race.
func (s *MemoryScheduler) Cancel(taskID string) bool {
	if s == nil {
		return false
	}
	taskID = strings.TrimSpace(taskID)
	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled := false
	for key, timer := range s.timers {
		if strings.HasSuffix(key, "::"+taskID) {
			if timer.Stop() {
				s.wg.Done()
				cancelled = true
			}
			delete(s.timers, key)
		}
	}
	return cancelled
}

// Wait blocks until all pending timers fired or were cancelled. Test helper
// and shutdown hook.
func (s *MemoryScheduler) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

func (s *MemoryScheduler) Shutdown() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.closed = true
	for key, timer := range s.timers {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.timers, key)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func schedulerKey(msg TaskMessage) string {
	kind := strings.TrimSpace(msg.Kind)
	taskID := strings.TrimSpace(msg.TaskID)
	if kind == "" || taskID == "" {
		return ""
	}
	return kind + "::" + taskID
}
