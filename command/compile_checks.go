package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[KickMessage]          = (*KickCommand)(nil)
	_ gocmd.Commander[SuspendMessage]       = (*SuspendCommand)(nil)
	_ gocmd.Commander[ResumeMessage]        = (*ResumeCommand)(nil)
	_ gocmd.Commander[DeprovisionMessage]   = (*DeprovisionCommand)(nil)
	_ gocmd.Commander[ResizeMessage]        = (*ResizeCommand)(nil)
	_ gocmd.Commander[HandleWebhookMessage] = (*HandleWebhookCommand)(nil)
	_ gocmd.Commander[PollTaskMessage]      = (*PollTaskCommand)(nil)
	_ gocmd.Commander[CompleteTaskMessage]  = (*CompleteTaskCommand)(nil)
	_ gocmd.Commander[FailTaskMessage]      = (*FailTaskCommand)(nil)
)
