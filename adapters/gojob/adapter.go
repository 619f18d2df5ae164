package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-provision/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// Job ids mirror the task message kinds so a queue inspector reads the same
// names the orchestrator logs.
const (
	JobIDDispatch = core.TaskKindDispatch
	JobIDTaskPoll = core.TaskKindPoll
)

const (
	paramTaskID     = "task_id"
	paramResourceID = "resource_id"
	paramDriverID   = "driver_id"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage maps an orchestrator task message to go-job. The
// idempotency key dedupes double-scheduled work for the same logical attempt.
func ToExecutionMessage(msg core.TaskMessage) *job.ExecutionMessage {
	parameters := map[string]any{
		paramTaskID:     strings.TrimSpace(msg.TaskID),
		paramResourceID: strings.TrimSpace(msg.ResourceID),
		paramDriverID:   strings.TrimSpace(msg.DriverID),
	}
	for key, value := range msg.Parameters {
		parameters[key] = value
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.Kind),
		Parameters:     parameters,
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// FromExecutionMessage maps a go-job message back into the task contract.
func FromExecutionMessage(msg *job.ExecutionMessage) core.TaskMessage {
	if msg == nil {
		return core.TaskMessage{}
	}
	out := core.TaskMessage{
		Kind:           strings.TrimSpace(msg.JobID),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		Parameters:     map[string]any{},
	}
	for key, value := range msg.Parameters {
		switch key {
		case paramTaskID:
			out.TaskID = strings.TrimSpace(fmt.Sprint(value))
		case paramResourceID:
			out.ResourceID = strings.TrimSpace(fmt.Sprint(value))
		case paramDriverID:
			out.DriverID = strings.TrimSpace(fmt.Sprint(value))
		default:
			out.Parameters[key] = value
		}
	}
	return out
}

// QueueScheduler puts task messages on a go-job queue. The queue's enqueue
// has no native delay, so delayed work is held on a timer keyed by task id
// and enqueued when it fires; Cancel drops the pending timer.
type QueueScheduler struct {
	enqueuer queue.Enqueuer
	logger   glog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewQueueScheduler(enqueuer queue.Enqueuer, logger glog.Logger) *QueueScheduler {
	return &QueueScheduler{
		enqueuer: enqueuer,
		logger:   glog.Ensure(logger),
		timers:   map[string]*time.Timer{},
	}
}

func (s *QueueScheduler) Schedule(ctx context.Context, msg core.TaskMessage, delay time.Duration) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	taskID := strings.TrimSpace(msg.TaskID)
	if taskID == "" {
		return fmt.Errorf("gojob: task id is required")
	}
	if delay <= 0 {
		return s.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.timers[taskID]; ok {
		existing.Stop()
	}
	s.timers[taskID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, taskID)
		s.mu.Unlock()
		if err := s.enqueuer.Enqueue(context.Background(), ToExecutionMessage(msg)); err != nil {
			s.logger.Error("delayed enqueue failed", "task_id", taskID, "kind", msg.Kind, "error", err)
		}
	})
	return nil
}

func (s *QueueScheduler) Cancel(taskID string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.timers[strings.TrimSpace(taskID)]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.timers, strings.TrimSpace(taskID))
	return true
}

// TaskRunner is the consuming side of the queue, satisfied by
// *core.Orchestrator.
type TaskRunner interface {
	Run(ctx context.Context, msg core.TaskMessage) error
}

// Worker drains deliveries into the runner. Attempt counts for the retry
// policy come from the persisted task state the runner maintains, not from
// queue metadata; the worker only bounds the requeue behavior.
type Worker struct {
	dequeuer queue.Dequeuer
	runner   TaskRunner
	policy   RetryPolicy
	hook     worker.Hook
	logger   glog.Logger
}

func NewWorker(dequeuer queue.Dequeuer, runner TaskRunner, policy RetryPolicy, logger glog.Logger) *Worker {
	return &Worker{
		dequeuer: dequeuer,
		runner:   runner,
		policy:   policy,
		logger:   glog.Ensure(logger),
	}
}

// WithHook attaches a worker lifecycle hook (logging, metrics).
func (w *Worker) WithHook(hook worker.Hook) *Worker {
	if w != nil {
		w.hook = hook
	}
	return w
}

// Run consumes deliveries until the context is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("processing delivery failed", "error", err)
		}
	}
}

// ProcessOne dequeues and handles a single delivery.
func (w *Worker) ProcessOne(ctx context.Context) error {
	if w == nil || w.dequeuer == nil || w.runner == nil {
		return fmt.Errorf("gojob: worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	raw := delivery.Message()
	msg := FromExecutionMessage(raw)
	started := time.Now()
	w.fireStart(ctx, raw)

	runErr := w.runner.Run(ctx, msg)
	if runErr == nil {
		w.fireSuccess(ctx, raw, started)
		return delivery.Ack(ctx)
	}

	w.fireFailure(ctx, raw, runErr, started)
	opts := w.policy.NormalizeAttempt(queue.NackOptions{
		Requeue: true,
		Reason:  runErr.Error(),
	}, 0)
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		return fmt.Errorf("gojob: nack after run failure: %w", nackErr)
	}
	return runErr
}

func (w *Worker) fireStart(ctx context.Context, msg *job.ExecutionMessage) {
	if w.hook == nil {
		return
	}
	w.hook.OnStart(ctx, worker.Event{Message: msg, StartedAt: time.Now()})
}

func (w *Worker) fireSuccess(ctx context.Context, msg *job.ExecutionMessage, started time.Time) {
	if w.hook == nil {
		return
	}
	w.hook.OnSuccess(ctx, worker.Event{Message: msg, StartedAt: started, Duration: time.Since(started)})
}

func (w *Worker) fireFailure(ctx context.Context, msg *job.ExecutionMessage, err error, started time.Time) {
	if w.hook == nil {
		return
	}
	w.hook.OnFailure(ctx, worker.Event{Message: msg, Err: err, StartedAt: started, Duration: time.Since(started)})
}

// LoggingHook logs worker lifecycle events through glog.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("task started", hookFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("task completed", hookFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	fields := append(hookFields(event), "error", event.Err)
	h.logger.Warn("task failed", fields...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	fields := append(hookFields(event), "attempt", event.Attempt, "delay", event.Delay)
	h.logger.Info("task retry scheduled", fields...)
}

func hookFields(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return []any{}
	}
	return []any{
		"job_id", message.JobID,
		"task_id", fmt.Sprint(message.Parameters[paramTaskID]),
	}
}

var (
	_ core.TaskScheduler = (*QueueScheduler)(nil)
	_ worker.Hook        = (*LoggingHook)(nil)
)
