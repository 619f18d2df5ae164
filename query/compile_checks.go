package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-provision/core"
)

var (
	_ gocmd.Querier[GetResourceMessage, core.Resource]     = (*GetResourceQuery)(nil)
	_ gocmd.Querier[ListResourcesMessage, []core.Resource] = (*ListResourcesQuery)(nil)
	_ gocmd.Querier[GetTaskMessage, core.ProvisionTask]    = (*GetTaskQuery)(nil)
	_ gocmd.Querier[ListAuditMessage, []core.AuditEntry]   = (*ListAuditQuery)(nil)
)
