package provision

import (
	"fmt"

	provisioncommand "github.com/goliatone/go-provision/command"
	"github.com/goliatone/go-provision/core"
	provisionquery "github.com/goliatone/go-provision/query"
)

// CommandQueryService is the full surface the facade wires commands and
// queries against. *core.Orchestrator satisfies it.
type CommandQueryService interface {
	provisioncommand.MutatingService
	provisionquery.ResourceReader
}

type Commands struct {
	Kick          *provisioncommand.KickCommand
	Suspend       *provisioncommand.SuspendCommand
	Resume        *provisioncommand.ResumeCommand
	Deprovision   *provisioncommand.DeprovisionCommand
	Resize        *provisioncommand.ResizeCommand
	HandleWebhook *provisioncommand.HandleWebhookCommand
	PollTask      *provisioncommand.PollTaskCommand
	CompleteTask  *provisioncommand.CompleteTaskCommand
	FailTask      *provisioncommand.FailTaskCommand
}

type Queries struct {
	GetResource   *provisionquery.GetResourceQuery
	ListResources *provisionquery.ListResourcesQuery
	GetTask       *provisionquery.GetTaskQuery
	ListAudit     *provisionquery.ListAuditQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

// NewFacade bundles the command and query handlers around one service so
// callers register a single value with their dispatcher.
func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("provision: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Kick:          provisioncommand.NewKickCommand(service),
		Suspend:       provisioncommand.NewSuspendCommand(service),
		Resume:        provisioncommand.NewResumeCommand(service),
		Deprovision:   provisioncommand.NewDeprovisionCommand(service),
		Resize:        provisioncommand.NewResizeCommand(service),
		HandleWebhook: provisioncommand.NewHandleWebhookCommand(service),
		PollTask:      provisioncommand.NewPollTaskCommand(service),
		CompleteTask:  provisioncommand.NewCompleteTaskCommand(service),
		FailTask:      provisioncommand.NewFailTaskCommand(service),
	}
	facade.queries = Queries{
		GetResource:   provisionquery.NewGetResourceQuery(service),
		ListResources: provisionquery.NewListResourcesQuery(service),
		GetTask:       provisionquery.NewGetTaskQuery(service),
		ListAudit:     provisionquery.NewListAuditQuery(service),
	}

	return facade, nil
}

// New builds the orchestrator from config and options, then wraps it in a
// facade. It is the single-call wiring path for embedders; callers needing
// the orchestrator directly use core.NewOrchestrator and NewFacade
// separately.
func New(cfg core.Config, opts ...core.Option) (*Facade, *core.Orchestrator, error) {
	orchestrator, err := core.NewOrchestrator(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	facade, err := NewFacade(orchestrator)
	if err != nil {
		return nil, nil, err
	}
	return facade, orchestrator, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
