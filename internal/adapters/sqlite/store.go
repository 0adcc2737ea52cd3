package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
	"gorm.io/gorm"
)

// Store is the scope guard over the shared database. Tenant data is only
// reachable through the handles it opens.
type Store struct {
	db  *gormsqlite.DB
	now func() time.Time
}

func NewStore(db *gormsqlite.DB) *Store {
	return &Store{db: db, now: time.Now}
}

var (
	_ ports.ScopeOpener     = (*Store)(nil)
	_ ports.TenantDirectory = (*Store)(nil)
)

func (s *Store) OpenTenantScope(tenantID string, actor *domain.ActorContext) (ports.TenantScope, error) {
	if err := checkTenantID(tenantID); err != nil {
		return nil, err
	}
	a, err := bindActor(tenantID, actor)
	if err != nil {
		return nil, err
	}
	return &TenantScope{store: s, tenantID: tenantID, actor: a}, nil
}

func (s *Store) OpenUserScope(tenantID, userID string, actor *domain.ActorContext) (ports.UserScope, error) {
	if err := checkTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := domain.ValidateID(userID); err != nil {
		return nil, err
	}
	a, err := bindActor(tenantID, actor)
	if err != nil {
		return nil, err
	}
	return &UserScope{TenantScope: TenantScope{store: s, tenantID: tenantID, actor: a}, ownerID: userID}, nil
}

func checkTenantID(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return domain.ErrTenantIDRequired
	}
	return domain.ValidateID(tenantID)
}

// bindActor copies the actor so the scope and everything downstream share one
// immutable value.
func bindActor(tenantID string, actor *domain.ActorContext) (*domain.ActorContext, error) {
	if actor == nil {
		return nil, nil
	}
	if actor.TenantID != tenantID {
		return nil, domain.NewError(domain.CodeAccessDenied, "actor belongs to another tenant")
	}
	if err := domain.ValidateID(actor.UserID); err != nil {
		return nil, err
	}
	a := *actor
	return &a, nil
}

func (s *Store) CreateTenant(ctx context.Context, t domain.Tenant) (domain.Tenant, error) {
	if err := checkTenantID(t.ID); err != nil {
		return domain.Tenant{}, err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	model := tenantModel{ID: t.ID, Name: t.Name, Active: t.Active, CreatedAt: t.CreatedAt}
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("create tenant: %w", err)
	}
	return model.toDomain(), nil
}

func (s *Store) SetTenantActive(ctx context.Context, id string, active bool) error {
	var affected int64
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&tenantModel{}).Where("id = ?", id).Update("active", active)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("set tenant active: %w", err)
	}
	if affected == 0 {
		return domain.NewError(domain.CodeNotFound, "tenant not found")
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	var model tenantModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).Take(&model).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Tenant{}, domain.NewError(domain.CodeNotFound, "tenant not found")
	}
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return model.toDomain(), nil
}

// ListTenants returns every tenant, disabled ones included.
func (s *Store) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	var rows []tenantModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	out := make([]domain.Tenant, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
