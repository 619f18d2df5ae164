package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-provision/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ResourceStore struct {
	db        *bun.DB
	repo      repository.Repository[*resourceRecord]
	auditRepo repository.Repository[*auditEntryRecord]
}

func NewResourceStore(db *bun.DB) (*ResourceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*resourceRecord](db, resourceHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid resource repository wiring: %w", err)
		}
	}
	auditRepo := repository.NewRepository[*auditEntryRecord](db, auditHandlers())
	if validator, ok := auditRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid audit repository wiring: %w", err)
		}
	}
	return &ResourceStore{db: db, repo: repo, auditRepo: auditRepo}, nil
}

func (s *ResourceStore) Create(ctx context.Context, in core.CreateResourceInput) (core.Resource, error) {
	if s == nil || s.repo == nil {
		return core.Resource{}, fmt.Errorf("sqlstore: resource store is not configured")
	}
	if strings.TrimSpace(in.OrderRef) == "" {
		return core.Resource{}, fmt.Errorf("sqlstore: order ref is required")
	}
	if strings.TrimSpace(in.UserID) == "" {
		return core.Resource{}, fmt.Errorf("sqlstore: user id is required")
	}
	if strings.TrimSpace(in.DriverID) == "" {
		return core.Resource{}, fmt.Errorf("sqlstore: driver id is required")
	}
	if strings.TrimSpace(in.PlanCode) == "" {
		return core.Resource{}, fmt.Errorf("sqlstore: plan code is required")
	}

	record := newResourceRecord(in, uuid.NewString(), time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Resource{}, err
	}
	return created.toDomain(), nil
}

func (s *ResourceStore) Get(ctx context.Context, id string) (core.Resource, error) {
	if s == nil || s.repo == nil {
		return core.Resource{}, fmt.Errorf("sqlstore: resource store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Resource{}, fmt.Errorf("%w: %s", core.ErrResourceNotFound, id)
		}
		return core.Resource{}, err
	}
	if record == nil {
		return core.Resource{}, fmt.Errorf("%w: %s", core.ErrResourceNotFound, id)
	}
	return record.toDomain(), nil
}

func (s *ResourceStore) FindByOrderRef(ctx context.Context, orderRef string) (core.Resource, bool, error) {
	if s == nil || s.repo == nil {
		return core.Resource{}, false, fmt.Errorf("sqlstore: resource store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("order_ref", "=", strings.TrimSpace(orderRef)),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Resource{}, false, err
	}
	if len(records) == 0 {
		return core.Resource{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *ResourceStore) List(ctx context.Context, filter core.ResourceFilter) ([]core.Resource, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: resource store is not configured")
	}
	criteria := []repository.SelectCriteria{repository.OrderBy("created_at ASC")}
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		criteria = append(criteria, repository.SelectBy("user_id", "=", userID))
	}
	if driverID := strings.TrimSpace(filter.DriverID); driverID != "" {
		criteria = append(criteria, repository.SelectBy("driver_id", "=", driverID))
	}
	if filter.Status != "" {
		criteria = append(criteria, repository.SelectBy("status", "=", string(filter.Status)))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	resources := make([]core.Resource, 0, len(records))
	for _, record := range records {
		resources = append(resources, record.toDomain())
	}
	return resources, nil
}

// ApplyTransition re-reads the row inside the transaction and verifies the
// status is still the one the transition was computed against, so two
// concurrent workers cannot both apply an edge from the same starting status.
// The status update and the audit row commit or roll back together.
func (s *ResourceStore) ApplyTransition(ctx context.Context, in core.ApplyTransitionInput) (core.Resource, error) {
	if s == nil || s.db == nil || s.auditRepo == nil {
		return core.Resource{}, fmt.Errorf("sqlstore: resource store is not configured")
	}
	id := strings.TrimSpace(in.ResourceID)
	if id == "" {
		return core.Resource{}, fmt.Errorf("sqlstore: resource id is required")
	}

	var applied core.Resource
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := new(resourceRecord)
		if err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", core.ErrResourceNotFound, id)
			}
			return err
		}
		if record.Status != string(in.Result.From) {
			return fmt.Errorf(
				"%w: status moved from %s while applying %s", core.ErrInvalidResourceStatusTransition,
				in.Result.From, in.Result.To,
			)
		}

		now := in.Result.Audit.CreatedAt
		if now.IsZero() {
			now = time.Now().UTC()
		}
		record.Status = string(in.Result.To)
		record.UpdatedAt = now
		if ref := strings.TrimSpace(in.ProviderRef); ref != "" {
			record.ProviderRef = ref
		}
		if detail := strings.TrimSpace(in.LastError); detail != "" {
			record.LastError = detail
		}
		if in.Result.To == core.ResourceStatusActive {
			record.LastError = ""
		}
		if _, err := tx.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
			return err
		}

		audit := in.Result.Audit
		audit.ResourceID = id
		auditRecord := newAuditEntryRecord(audit)
		if auditRecord.ID == "" {
			auditRecord.ID = uuid.NewString()
		}
		if auditRecord.CreatedAt.IsZero() {
			auditRecord.CreatedAt = now
		}
		if _, err := s.auditRepo.CreateTx(ctx, tx, auditRecord); err != nil {
			return err
		}

		applied = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Resource{}, err
	}
	return applied, nil
}

func (s *ResourceStore) MarkSynced(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: resource store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: resource id is required")
	}
	syncedAt := at.UTC()
	result, err := s.db.NewUpdate().
		Model((*resourceRecord)(nil)).
		Set("last_synced_at = ?", syncedAt).
		Set("updated_at = ?", syncedAt).
		Where("id = ?", trimmedID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrResourceNotFound, trimmedID)
	}
	return nil
}
