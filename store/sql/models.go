package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type resourceRecord struct {
	bun.BaseModel `bun:"table:provision_resources,alias:pr"`

	ID           string         `bun:"id,pk"`
	OrderRef     string         `bun:"order_ref,notnull"`
	UserID       string         `bun:"user_id,notnull"`
	DriverID     string         `bun:"driver_id,notnull"`
	ProviderRef  string         `bun:"provider_ref"`
	PlanCode     string         `bun:"plan_code,notnull"`
	Region       string         `bun:"region"`
	Status       string         `bun:"status,notnull"`
	Spec         map[string]any `bun:"spec,type:jsonb,notnull"`
	LineItemRef  string         `bun:"line_item_ref"`
	LastError    string         `bun:"last_error"`
	LastSyncedAt *time.Time     `bun:"last_synced_at,nullzero"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type taskRecord struct {
	bun.BaseModel `bun:"table:provision_tasks,alias:pt"`

	ID             string     `bun:"id,pk"`
	ResourceID     string     `bun:"resource_id,notnull"`
	ProviderTaskID string     `bun:"provider_task_id"`
	Action         string     `bun:"action,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LastError      string     `bun:"last_error"`
	NextPollAt     *time.Time `bun:"next_poll_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type credentialRecord struct {
	bun.BaseModel `bun:"table:provision_credentials,alias:pc"`

	ID                string    `bun:"id,pk"`
	Name              string    `bun:"name,notnull"`
	DriverID          string    `bun:"driver_id,notnull"`
	Scope             string    `bun:"scope,notnull"`
	UserID            string    `bun:"user_id"`
	EncryptedPayload  []byte    `bun:"encrypted_payload,notnull"`
	EncryptionKeyID   string    `bun:"encryption_key_id,notnull"`
	EncryptionVersion int       `bun:"encryption_version,notnull"`
	CreatedBy         string    `bun:"created_by"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type planMapRecord struct {
	bun.BaseModel `bun:"table:provision_plan_maps,alias:pm"`

	ID           string         `bun:"id,pk"`
	PlanCode     string         `bun:"plan_code,notnull"`
	DriverID     string         `bun:"driver_id,notnull"`
	ProviderPlan string         `bun:"provider_plan,notnull"`
	Region       string         `bun:"region"`
	Config       map[string]any `bun:"config,type:jsonb,notnull"`
	Active       bool           `bun:"active,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type auditEntryRecord struct {
	bun.BaseModel `bun:"table:provision_audit_entries,alias:pa"`

	ID           string         `bun:"id,pk"`
	ResourceID   string         `bun:"resource_id,notnull"`
	Actor        string         `bun:"actor,notnull"`
	Action       string         `bun:"action,notnull"`
	StatusBefore string         `bun:"status_before,notnull"`
	StatusAfter  string         `bun:"status_after,notnull"`
	Metadata     map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
