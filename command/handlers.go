package command

import (
	"context"
	"errors"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-provision/core"
)

// MutatingService is the lifecycle surface the commands delegate to,
// satisfied by *core.Orchestrator.
type MutatingService interface {
	Kick(ctx context.Context, req core.KickRequest) (core.Resource, error)
	Suspend(ctx context.Context, req core.ActionRequest) (core.ProvisionTask, error)
	Resume(ctx context.Context, req core.ActionRequest) (core.ProvisionTask, error)
	Deprovision(ctx context.Context, req core.ActionRequest) (core.ProvisionTask, error)
	Resize(ctx context.Context, req core.ResizeRequest) (core.ProvisionTask, error)
	HandleWebhook(ctx context.Context, req core.InboundRequest) (core.ProvisionTask, error)
	PollTask(ctx context.Context, taskID string) error
	CompleteTask(ctx context.Context, taskID string, result core.PollResult) error
	FailTask(ctx context.Context, taskID string, cause error, timedOut bool) error
}

type KickCommand struct {
	service MutatingService
}

func NewKickCommand(service MutatingService) *KickCommand {
	return &KickCommand{service: service}
}

func (c *KickCommand) Execute(ctx context.Context, msg KickMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: kick service is required")
	}
	out, err := c.service.Kick(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SuspendCommand struct {
	service MutatingService
}

func NewSuspendCommand(service MutatingService) *SuspendCommand {
	return &SuspendCommand{service: service}
}

func (c *SuspendCommand) Execute(ctx context.Context, msg SuspendMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: suspend service is required")
	}
	out, err := c.service.Suspend(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResumeCommand struct {
	service MutatingService
}

func NewResumeCommand(service MutatingService) *ResumeCommand {
	return &ResumeCommand{service: service}
}

func (c *ResumeCommand) Execute(ctx context.Context, msg ResumeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: resume service is required")
	}
	out, err := c.service.Resume(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeprovisionCommand struct {
	service MutatingService
}

func NewDeprovisionCommand(service MutatingService) *DeprovisionCommand {
	return &DeprovisionCommand{service: service}
}

func (c *DeprovisionCommand) Execute(ctx context.Context, msg DeprovisionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: deprovision service is required")
	}
	out, err := c.service.Deprovision(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResizeCommand struct {
	service MutatingService
}

func NewResizeCommand(service MutatingService) *ResizeCommand {
	return &ResizeCommand{service: service}
}

func (c *ResizeCommand) Execute(ctx context.Context, msg ResizeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: resize service is required")
	}
	out, err := c.service.Resize(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type HandleWebhookCommand struct {
	service MutatingService
}

func NewHandleWebhookCommand(service MutatingService) *HandleWebhookCommand {
	return &HandleWebhookCommand{service: service}
}

func (c *HandleWebhookCommand) Execute(ctx context.Context, msg HandleWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.HandleWebhook(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PollTaskCommand struct {
	service MutatingService
}

func NewPollTaskCommand(service MutatingService) *PollTaskCommand {
	return &PollTaskCommand{service: service}
}

func (c *PollTaskCommand) Execute(ctx context.Context, msg PollTaskMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: poll service is required")
	}
	return c.service.PollTask(ctx, msg.TaskID)
}

type CompleteTaskCommand struct {
	service MutatingService
}

func NewCompleteTaskCommand(service MutatingService) *CompleteTaskCommand {
	return &CompleteTaskCommand{service: service}
}

func (c *CompleteTaskCommand) Execute(ctx context.Context, msg CompleteTaskMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: task completion service is required")
	}
	return c.service.CompleteTask(ctx, msg.TaskID, msg.Result)
}

type FailTaskCommand struct {
	service MutatingService
}

func NewFailTaskCommand(service MutatingService) *FailTaskCommand {
	return &FailTaskCommand{service: service}
}

func (c *FailTaskCommand) Execute(ctx context.Context, msg FailTaskMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: task failure service is required")
	}
	var cause error
	if msg.Cause != "" {
		cause = errors.New(msg.Cause)
	}
	return c.service.FailTask(ctx, msg.TaskID, cause, msg.TimedOut)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
