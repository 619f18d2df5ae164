package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-provision/core"
)

const (
	TypeGetResource   = "provision.query.resource.get"
	TypeListResources = "provision.query.resource.list"
	TypeGetTask       = "provision.query.task.get"
	TypeListAudit     = "provision.query.audit.list"
)

type GetResourceMessage struct {
	ResourceID string
}

func (GetResourceMessage) Type() string { return TypeGetResource }

func (m GetResourceMessage) Validate() error {
	if strings.TrimSpace(m.ResourceID) == "" {
		return fmt.Errorf("query: resource id is required")
	}
	return nil
}

// ListResourcesMessage filters are all optional; an empty message lists
// every resource.
type ListResourcesMessage struct {
	UserID   string
	DriverID string
	Status   string
}

func (ListResourcesMessage) Type() string { return TypeListResources }

func (m ListResourcesMessage) Validate() error {
	if s := strings.TrimSpace(m.Status); s != "" && !core.ResourceStatus(s).Valid() {
		return fmt.Errorf("query: unknown resource status %q", s)
	}
	return nil
}

type GetTaskMessage struct {
	TaskID string
}

func (GetTaskMessage) Type() string { return TypeGetTask }

func (m GetTaskMessage) Validate() error {
	if strings.TrimSpace(m.TaskID) == "" {
		return fmt.Errorf("query: task id is required")
	}
	return nil
}

type ListAuditMessage struct {
	ResourceID string
}

func (ListAuditMessage) Type() string { return TypeListAudit }

func (m ListAuditMessage) Validate() error {
	if strings.TrimSpace(m.ResourceID) == "" {
		return fmt.Errorf("query: resource id is required")
	}
	return nil
}
