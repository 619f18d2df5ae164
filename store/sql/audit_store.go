package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-provision/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditStore appends transition rows. There is no update or delete path;
// compliance reads depend on the trail staying immutable.
type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*auditEntryRecord]
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*auditEntryRecord](db, auditHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid audit repository wiring: %w", err)
		}
	}
	return &AuditStore{db: db, repo: repo}, nil
}

func (s *AuditStore) Record(ctx context.Context, entry core.AuditEntry) (core.AuditEntry, error) {
	if s == nil || s.repo == nil {
		return core.AuditEntry{}, fmt.Errorf("sqlstore: audit store is not configured")
	}
	if strings.TrimSpace(entry.ResourceID) == "" {
		return core.AuditEntry{}, fmt.Errorf("sqlstore: audit entry requires a resource id")
	}

	record := newAuditEntryRecord(entry)
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Actor == "" {
		record.Actor = "system"
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.AuditEntry{}, err
	}
	return created.toDomain(), nil
}

func (s *AuditStore) ListByResource(ctx context.Context, resourceID string) ([]core.AuditEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: audit store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("resource_id", "=", strings.TrimSpace(resourceID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.AuditEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
