package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-provision/core"
)

func newResourceRecord(in core.CreateResourceInput, id string, now time.Time) *resourceRecord {
	return &resourceRecord{
		ID:          id,
		OrderRef:    strings.TrimSpace(in.OrderRef),
		UserID:      strings.TrimSpace(in.UserID),
		DriverID:    strings.TrimSpace(in.DriverID),
		PlanCode:    strings.TrimSpace(in.PlanCode),
		Region:      strings.TrimSpace(in.Region),
		Status:      string(core.ResourceStatusPending),
		Spec:        copyAnyMap(in.Spec),
		LineItemRef: strings.TrimSpace(in.LineItemRef),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *resourceRecord) toDomain() core.Resource {
	if r == nil {
		return core.Resource{}
	}
	resource := core.Resource{
		ID:          r.ID,
		OrderRef:    r.OrderRef,
		UserID:      r.UserID,
		DriverID:    r.DriverID,
		ProviderRef: r.ProviderRef,
		PlanCode:    r.PlanCode,
		Region:      r.Region,
		Status:      core.ResourceStatus(r.Status),
		Spec:        copyAnyMap(r.Spec),
		LineItemRef: r.LineItemRef,
		LastError:   r.LastError,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.LastSyncedAt != nil {
		syncedAt := *r.LastSyncedAt
		resource.LastSyncedAt = &syncedAt
	}
	return resource
}

func newTaskRecord(in core.CreateTaskInput, id string, now time.Time) *taskRecord {
	return &taskRecord{
		ID:         id,
		ResourceID: strings.TrimSpace(in.ResourceID),
		Action:     string(in.Action),
		Status:     string(core.TaskStatusPending),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (r *taskRecord) toDomain() core.ProvisionTask {
	if r == nil {
		return core.ProvisionTask{}
	}
	task := core.ProvisionTask{
		ID:             r.ID,
		ResourceID:     r.ResourceID,
		ProviderTaskID: r.ProviderTaskID,
		Action:         core.TaskAction(r.Action),
		Status:         core.TaskStatus(r.Status),
		Attempts:       r.Attempts,
		LastError:      r.LastError,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.NextPollAt != nil {
		nextPollAt := *r.NextPollAt
		task.NextPollAt = &nextPollAt
	}
	return task
}

func newCredentialRecord(in core.StoreCredentialInput, id string, now time.Time) *credentialRecord {
	return &credentialRecord{
		ID:                id,
		Name:              strings.TrimSpace(in.Name),
		DriverID:          strings.TrimSpace(in.DriverID),
		Scope:             string(in.Scope),
		UserID:            strings.TrimSpace(in.UserID),
		EncryptedPayload:  append([]byte(nil), in.EncryptedPayload...),
		EncryptionKeyID:   strings.TrimSpace(in.EncryptionKeyID),
		EncryptionVersion: in.EncryptionVersion,
		CreatedBy:         strings.TrimSpace(in.CreatedBy),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (r *credentialRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	return core.Credential{
		ID:                r.ID,
		Name:              r.Name,
		DriverID:          r.DriverID,
		Scope:             core.CredentialScope(r.Scope),
		UserID:            r.UserID,
		EncryptedPayload:  append([]byte(nil), r.EncryptedPayload...),
		EncryptionKeyID:   r.EncryptionKeyID,
		EncryptionVersion: r.EncryptionVersion,
		CreatedBy:         r.CreatedBy,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func newPlanMapRecord(in core.PlanMap, id string, now time.Time) *planMapRecord {
	return &planMapRecord{
		ID:           id,
		PlanCode:     strings.TrimSpace(in.PlanCode),
		DriverID:     strings.TrimSpace(in.DriverID),
		ProviderPlan: strings.TrimSpace(in.ProviderPlan),
		Region:       strings.TrimSpace(in.Region),
		Config:       copyAnyMap(in.Config),
		Active:       in.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r *planMapRecord) toDomain() core.PlanMap {
	if r == nil {
		return core.PlanMap{}
	}
	return core.PlanMap{
		ID:           r.ID,
		PlanCode:     r.PlanCode,
		DriverID:     r.DriverID,
		ProviderPlan: r.ProviderPlan,
		Region:       r.Region,
		Config:       copyAnyMap(r.Config),
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func newAuditEntryRecord(entry core.AuditEntry) *auditEntryRecord {
	return &auditEntryRecord{
		ID:           strings.TrimSpace(entry.ID),
		ResourceID:   strings.TrimSpace(entry.ResourceID),
		Actor:        strings.TrimSpace(entry.Actor),
		Action:       strings.TrimSpace(entry.Action),
		StatusBefore: string(entry.StatusBefore),
		StatusAfter:  string(entry.StatusAfter),
		Metadata:     copyAnyMap(entry.Metadata),
		CreatedAt:    entry.CreatedAt,
	}
}

func (r *auditEntryRecord) toDomain() core.AuditEntry {
	if r == nil {
		return core.AuditEntry{}
	}
	return core.AuditEntry{
		ID:           r.ID,
		ResourceID:   r.ResourceID,
		Actor:        r.Actor,
		Action:       r.Action,
		StatusBefore: core.ResourceStatus(r.StatusBefore),
		StatusAfter:  core.ResourceStatus(r.StatusAfter),
		Metadata:     copyAnyMap(r.Metadata),
		CreatedAt:    r.CreatedAt,
	}
}

func copyAnyMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		target[key] = value
	}
	return target
}
