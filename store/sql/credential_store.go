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

type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
}

func NewCredentialStore(db *bun.DB) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{db: db, repo: repo}, nil
}

func (s *CredentialStore) Create(ctx context.Context, in core.StoreCredentialInput) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	if strings.TrimSpace(in.Name) == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: credential name is required")
	}
	if strings.TrimSpace(in.DriverID) == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: driver id is required")
	}
	if err := in.Scope.Validate(); err != nil {
		return core.Credential{}, err
	}
	if in.Scope == core.CredentialScopeUser && strings.TrimSpace(in.UserID) == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: user scoped credential requires a user id")
	}
	if len(in.EncryptedPayload) == 0 {
		return core.Credential{}, fmt.Errorf("sqlstore: encrypted payload is required")
	}

	record := newCredentialRecord(in, uuid.NewString(), time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Credential{}, err
	}
	return created.toDomain(), nil
}

func (s *CredentialStore) Get(ctx context.Context, id string) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Credential{}, fmt.Errorf("%w: %s", core.ErrCredentialUnavailable, id)
		}
		return core.Credential{}, err
	}
	if record == nil {
		return core.Credential{}, fmt.Errorf("%w: %s", core.ErrCredentialUnavailable, id)
	}
	return record.toDomain(), nil
}

func (s *CredentialStore) FindForDriver(ctx context.Context, driverID string, userID string) ([]core.Credential, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	trimmedUserID := strings.TrimSpace(userID)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("driver_id", "=", strings.TrimSpace(driverID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				q = q.Where("?TableAlias.scope = ?", string(core.CredentialScopeSystem))
				if trimmedUserID != "" {
					q = q.WhereOr(
						"?TableAlias.scope = ? AND ?TableAlias.user_id = ?",
						string(core.CredentialScopeUser), trimmedUserID,
					)
				}
				return q
			})
		}),
		repository.OrderBy("created_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Credential, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
