package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/tenantsync/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepository stores web sessions by token hash. Sessions are looked up
// before the tenant is known, so it works outside any tenant scope.
type SessionRepository struct {
	db *gormsqlite.DB
}

func NewSessionRepository(db *gormsqlite.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error) {
	var model sessionModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("token_hash = ?", tokenHash).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("find session: %w", err)
	}

	return domain.Session{
		TokenHash: model.TokenHash,
		TenantID:  model.TenantID,
		UserID:    model.UserID,
		ExpiresAt: model.ExpiresAt,
		Revoked:   model.Revoked,
		CreatedAt: model.CreatedAt,
	}, nil
}

func (r *SessionRepository) Upsert(ctx context.Context, session domain.Session) error {
	model := sessionModel{
		TokenHash: session.TokenHash,
		TenantID:  session.TenantID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt.UTC(),
		Revoked:   session.Revoked,
		CreatedAt: session.CreatedAt.UTC(),
	}

	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "user_id", "expires_at", "revoked"}),
		}).Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}
