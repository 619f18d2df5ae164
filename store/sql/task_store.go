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

type TaskStore struct {
	db   *bun.DB
	repo repository.Repository[*taskRecord]
}

func NewTaskStore(db *bun.DB) (*TaskStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*taskRecord](db, taskHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid task repository wiring: %w", err)
		}
	}
	return &TaskStore{db: db, repo: repo}, nil
}

func (s *TaskStore) Create(ctx context.Context, in core.CreateTaskInput) (core.ProvisionTask, error) {
	if s == nil || s.repo == nil {
		return core.ProvisionTask{}, fmt.Errorf("sqlstore: task store is not configured")
	}
	if strings.TrimSpace(in.ResourceID) == "" {
		return core.ProvisionTask{}, fmt.Errorf("sqlstore: resource id is required")
	}
	action, err := core.ParseTaskAction(string(in.Action))
	if err != nil {
		return core.ProvisionTask{}, err
	}
	in.Action = action

	record := newTaskRecord(in, uuid.NewString(), time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.ProvisionTask{}, err
	}
	return created.toDomain(), nil
}

func (s *TaskStore) Get(ctx context.Context, id string) (core.ProvisionTask, error) {
	if s == nil || s.repo == nil {
		return core.ProvisionTask{}, fmt.Errorf("sqlstore: task store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ProvisionTask{}, fmt.Errorf("%w: %s", core.ErrTaskNotFound, id)
		}
		return core.ProvisionTask{}, err
	}
	if record == nil {
		return core.ProvisionTask{}, fmt.Errorf("%w: %s", core.ErrTaskNotFound, id)
	}
	return record.toDomain(), nil
}

func (s *TaskStore) FindActive(ctx context.Context, resourceID string, action core.TaskAction) (core.ProvisionTask, bool, error) {
	if s == nil || s.repo == nil {
		return core.ProvisionTask{}, false, fmt.Errorf("sqlstore: task store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("resource_id", "=", strings.TrimSpace(resourceID)),
		repository.SelectBy("action", "=", string(action)),
		repository.SelectBy("status", "=", string(core.TaskStatusPending)),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.ProvisionTask{}, false, err
	}
	if len(records) == 0 {
		return core.ProvisionTask{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

// FindByProviderTaskID scopes the lookup to the driver that owns the ref so
// two providers reusing the same task identifier cannot collide.
func (s *TaskStore) FindByProviderTaskID(ctx context.Context, driverID string, providerTaskID string) (core.ProvisionTask, bool, error) {
	if s == nil || s.db == nil {
		return core.ProvisionTask{}, false, fmt.Errorf("sqlstore: task store is not configured")
	}
	trimmedRef := strings.TrimSpace(providerTaskID)
	if trimmedRef == "" {
		return core.ProvisionTask{}, false, nil
	}

	record := new(taskRecord)
	err := s.db.NewSelect().
		Model(record).
		Join("JOIN provision_resources AS pr ON pr.id = ?TableAlias.resource_id").
		Where("?TableAlias.provider_task_id = ?", trimmedRef).
		Where("pr.driver_id = ?", strings.TrimSpace(driverID)).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ProvisionTask{}, false, nil
		}
		return core.ProvisionTask{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *TaskStore) ListActive(ctx context.Context, resourceID string) ([]core.ProvisionTask, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: task store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("resource_id", "=", strings.TrimSpace(resourceID)),
		repository.SelectBy("status", "=", string(core.TaskStatusPending)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ProvisionTask, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *TaskStore) Update(ctx context.Context, task core.ProvisionTask) (core.ProvisionTask, error) {
	if s == nil || s.repo == nil {
		return core.ProvisionTask{}, fmt.Errorf("sqlstore: task store is not configured")
	}
	trimmedID := strings.TrimSpace(task.ID)
	if trimmedID == "" {
		return core.ProvisionTask{}, fmt.Errorf("sqlstore: task id is required")
	}
	current, err := s.repo.GetByID(ctx, trimmedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ProvisionTask{}, fmt.Errorf("%w: %s", core.ErrTaskNotFound, trimmedID)
		}
		return core.ProvisionTask{}, err
	}

	current.ProviderTaskID = strings.TrimSpace(task.ProviderTaskID)
	current.Status = string(task.Status)
	current.Attempts = task.Attempts
	current.LastError = strings.TrimSpace(task.LastError)
	current.NextPollAt = nil
	if task.NextPollAt != nil {
		nextPollAt := task.NextPollAt.UTC()
		current.NextPollAt = &nextPollAt
	}
	current.UpdatedAt = task.UpdatedAt.UTC()
	if current.UpdatedAt.IsZero() {
		current.UpdatedAt = time.Now().UTC()
	}

	updated, err := s.repo.Update(ctx, current, repository.UpdateByID(trimmedID))
	if err != nil {
		return core.ProvisionTask{}, err
	}
	return updated.toDomain(), nil
}
