package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-provision/core"
)

const (
	TypeKick          = "provision.command.kick"
	TypeSuspend       = "provision.command.suspend"
	TypeResume        = "provision.command.resume"
	TypeDeprovision   = "provision.command.deprovision"
	TypeResize        = "provision.command.resize"
	TypeHandleWebhook = "provision.command.webhook.handle"
	TypePollTask      = "provision.command.task.poll"
	TypeCompleteTask  = "provision.command.task.complete"
	TypeFailTask      = "provision.command.task.fail"
)

type KickMessage struct {
	Request core.KickRequest
}

func (KickMessage) Type() string { return TypeKick }

func (m KickMessage) Validate() error {
	if strings.TrimSpace(m.Request.OrderRef) == "" {
		return fmt.Errorf("command: order ref is required")
	}
	if strings.TrimSpace(m.Request.PlanCode) == "" {
		return fmt.Errorf("command: plan code is required")
	}
	return nil
}

type SuspendMessage struct {
	Request core.ActionRequest
}

func (SuspendMessage) Type() string { return TypeSuspend }

func (m SuspendMessage) Validate() error {
	return validateActionRequest(m.Request)
}

type ResumeMessage struct {
	Request core.ActionRequest
}

func (ResumeMessage) Type() string { return TypeResume }

func (m ResumeMessage) Validate() error {
	return validateActionRequest(m.Request)
}

type DeprovisionMessage struct {
	Request core.ActionRequest
}

func (DeprovisionMessage) Type() string { return TypeDeprovision }

func (m DeprovisionMessage) Validate() error {
	return validateActionRequest(m.Request)
}

type ResizeMessage struct {
	Request core.ResizeRequest
}

func (ResizeMessage) Type() string { return TypeResize }

func (m ResizeMessage) Validate() error {
	if strings.TrimSpace(m.Request.ResourceID) == "" {
		return fmt.Errorf("command: resource id is required")
	}
	if strings.TrimSpace(m.Request.PlanCode) == "" {
		return fmt.Errorf("command: plan code is required")
	}
	return nil
}

type HandleWebhookMessage struct {
	Request core.InboundRequest
}

func (HandleWebhookMessage) Type() string { return TypeHandleWebhook }

func (m HandleWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Request.DriverID) == "" {
		return fmt.Errorf("command: driver id is required")
	}
	if len(m.Request.Body) == 0 {
		return fmt.Errorf("command: webhook body is required")
	}
	return nil
}

type PollTaskMessage struct {
	TaskID string
}

func (PollTaskMessage) Type() string { return TypePollTask }

func (m PollTaskMessage) Validate() error {
	if strings.TrimSpace(m.TaskID) == "" {
		return fmt.Errorf("command: task id is required")
	}
	return nil
}

type CompleteTaskMessage struct {
	TaskID string
	Result core.PollResult
}

func (CompleteTaskMessage) Type() string { return TypeCompleteTask }

func (m CompleteTaskMessage) Validate() error {
	if strings.TrimSpace(m.TaskID) == "" {
		return fmt.Errorf("command: task id is required")
	}
	switch m.Result.State {
	case core.PollStateCompleted, core.PollStateFailed:
		return nil
	default:
		return fmt.Errorf("command: poll result state %q is not terminal", m.Result.State)
	}
}

type FailTaskMessage struct {
	TaskID   string
	Cause    string
	TimedOut bool
}

func (FailTaskMessage) Type() string { return TypeFailTask }

func (m FailTaskMessage) Validate() error {
	if strings.TrimSpace(m.TaskID) == "" {
		return fmt.Errorf("command: task id is required")
	}
	return nil
}

func validateActionRequest(req core.ActionRequest) error {
	if strings.TrimSpace(req.ResourceID) == "" {
		return fmt.Errorf("command: resource id is required")
	}
	return nil
}
