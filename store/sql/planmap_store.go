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

type PlanMapStore struct {
	db   *bun.DB
	repo repository.Repository[*planMapRecord]
}

func NewPlanMapStore(db *bun.DB) (*PlanMapStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*planMapRecord](db, planMapHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid plan map repository wiring: %w", err)
		}
	}
	return &PlanMapStore{db: db, repo: repo}, nil
}

// Save registers or replaces the mapping for a plan code. Operators run this
// when a new billing plan goes live; the orchestrator only ever reads.
func (s *PlanMapStore) Save(ctx context.Context, in core.PlanMap) (core.PlanMap, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.PlanMap{}, fmt.Errorf("sqlstore: plan map store is not configured")
	}
	planCode := strings.TrimSpace(in.PlanCode)
	if planCode == "" {
		return core.PlanMap{}, fmt.Errorf("sqlstore: plan code is required")
	}
	if strings.TrimSpace(in.DriverID) == "" {
		return core.PlanMap{}, fmt.Errorf("sqlstore: driver id is required")
	}
	if strings.TrimSpace(in.ProviderPlan) == "" {
		return core.PlanMap{}, fmt.Errorf("sqlstore: provider plan is required")
	}

	now := time.Now().UTC()
	var saved core.PlanMap
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*planMapRecord)(nil)).
			Set("active = ?", false).
			Set("updated_at = ?", now).
			Where("plan_code = ?", planCode).
			Where("active = ?", true).
			Exec(ctx); err != nil {
			return err
		}
		record := newPlanMapRecord(in, uuid.NewString(), now)
		inserted, err := s.repo.CreateTx(ctx, tx, record)
		if err != nil {
			return err
		}
		saved = inserted.toDomain()
		return nil
	})
	if err != nil {
		return core.PlanMap{}, err
	}
	return saved, nil
}

func (s *PlanMapStore) ResolvePlan(ctx context.Context, planCode string) (core.PlanMap, error) {
	if s == nil || s.repo == nil {
		return core.PlanMap{}, fmt.Errorf("sqlstore: plan map store is not configured")
	}
	trimmedCode := strings.TrimSpace(planCode)
	if trimmedCode == "" {
		return core.PlanMap{}, fmt.Errorf("%w: plan code is empty", core.ErrPlanMapNotFound)
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("plan_code", "=", trimmedCode),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("active = ?", true)
		}),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.PlanMap{}, err
	}
	if len(records) == 0 {
		return core.PlanMap{}, fmt.Errorf("%w: %s", core.ErrPlanMapNotFound, trimmedCode)
	}
	return records[0].toDomain(), nil
}
