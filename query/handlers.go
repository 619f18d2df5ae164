package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-provision/core"
)

// ResourceReader is the read-only slice of the orchestrator the queries
// delegate to.
type ResourceReader interface {
	GetResource(ctx context.Context, id string) (core.Resource, error)
	ListResources(ctx context.Context, filter core.ResourceFilter) ([]core.Resource, error)
	GetTask(ctx context.Context, id string) (core.ProvisionTask, error)
	ListAudit(ctx context.Context, resourceID string) ([]core.AuditEntry, error)
}

type GetResourceQuery struct {
	reader ResourceReader
}

func NewGetResourceQuery(reader ResourceReader) *GetResourceQuery {
	return &GetResourceQuery{reader: reader}
}

func (q *GetResourceQuery) Query(ctx context.Context, msg GetResourceMessage) (core.Resource, error) {
	if q == nil || q.reader == nil {
		return core.Resource{}, queryDependencyError("query: resource reader is required")
	}
	return q.reader.GetResource(ctx, msg.ResourceID)
}

type ListResourcesQuery struct {
	reader ResourceReader
}

func NewListResourcesQuery(reader ResourceReader) *ListResourcesQuery {
	return &ListResourcesQuery{reader: reader}
}

func (q *ListResourcesQuery) Query(ctx context.Context, msg ListResourcesMessage) ([]core.Resource, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: resource reader is required")
	}
	filter := core.ResourceFilter{
		UserID:   strings.TrimSpace(msg.UserID),
		DriverID: strings.TrimSpace(msg.DriverID),
		Status:   core.ResourceStatus(strings.TrimSpace(msg.Status)),
	}
	return q.reader.ListResources(ctx, filter)
}

type GetTaskQuery struct {
	reader ResourceReader
}

func NewGetTaskQuery(reader ResourceReader) *GetTaskQuery {
	return &GetTaskQuery{reader: reader}
}

func (q *GetTaskQuery) Query(ctx context.Context, msg GetTaskMessage) (core.ProvisionTask, error) {
	if q == nil || q.reader == nil {
		return core.ProvisionTask{}, queryDependencyError("query: task reader is required")
	}
	return q.reader.GetTask(ctx, msg.TaskID)
}

type ListAuditQuery struct {
	reader ResourceReader
}

func NewListAuditQuery(reader ResourceReader) *ListAuditQuery {
	return &ListAuditQuery{reader: reader}
}

func (q *ListAuditQuery) Query(ctx context.Context, msg ListAuditMessage) ([]core.AuditEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: audit reader is required")
	}
	return q.reader.ListAudit(ctx, msg.ResourceID)
}
