package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
	"gorm.io/gorm"
)

// TenantScope is bound to exactly one tenant for its whole lifetime.
type TenantScope struct {
	store    *Store
	tenantID string
	actor    *domain.ActorContext
}

var (
	_ ports.TenantScope = (*TenantScope)(nil)
	_ ports.UserScope   = (*UserScope)(nil)
	_ ports.PersonalTx  = (*personalTx)(nil)
)

func (s *TenantScope) TenantID() string { return s.tenantID }

func (s *TenantScope) Actor() (domain.ActorContext, bool) {
	if s.actor == nil {
		return domain.ActorContext{}, false
	}
	return *s.actor, true
}

func (s *TenantScope) Read(ctx context.Context, fn func(tx ports.ScopedTx) error) error {
	return s.store.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return fn(s.bind(tx.DB))
	})
}

// Write runs fn in one write transaction. Any error from fn rolls back every
// statement issued through tx, including activity records.
func (s *TenantScope) Write(ctx context.Context, fn func(tx ports.ScopedTx) error) error {
	return s.store.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		st := s.bind(tx.DB)
		if err := st.requireActiveTenant(); err != nil {
			return err
		}
		return fn(st)
	})
}

func (s *TenantScope) bind(tx *gorm.DB) *scopedTx {
	return &scopedTx{tx: tx, tenantID: s.tenantID, actor: s.actor, store: s.store}
}

// UserScope narrows a tenant scope to one member's personal partition.
type UserScope struct {
	TenantScope
	ownerID string
}

func (s *UserScope) OwnerID() string { return s.ownerID }

func (s *UserScope) Read(ctx context.Context, fn func(tx ports.PersonalTx) error) error {
	return s.TenantScope.Read(ctx, func(tx ports.ScopedTx) error {
		return fn(&personalTx{scopedTx: tx.(*scopedTx), ownerID: s.ownerID})
	})
}

func (s *UserScope) Write(ctx context.Context, fn func(tx ports.PersonalTx) error) error {
	return s.TenantScope.Write(ctx, func(tx ports.ScopedTx) error {
		return fn(&personalTx{scopedTx: tx.(*scopedTx), ownerID: s.ownerID})
	})
}

// scopedTx implements ports.ScopedTx. Every query it issues starts from
// scoped(), which carries the tenant predicate.
type scopedTx struct {
	tx       *gorm.DB
	tenantID string
	actor    *domain.ActorContext
	store    *Store
}

func (t *scopedTx) TenantID() string { return t.tenantID }

func (t *scopedTx) Actor() (domain.ActorContext, bool) {
	if t.actor == nil {
		return domain.ActorContext{}, false
	}
	return *t.actor, true
}

func (t *scopedTx) scoped(model any) *gorm.DB {
	return t.tx.Model(model).Where("tenant_id = ?", t.tenantID)
}

func (t *scopedTx) requireActiveTenant() error {
	var tenant tenantModel
	err := t.tx.Where("id = ?", t.tenantID).Take(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewError(domain.CodeNotFound, "tenant not found")
	}
	if err != nil {
		return fmt.Errorf("load tenant: %w", err)
	}
	if !tenant.Active {
		return domain.NewError(domain.CodeAccessDenied, "tenant is disabled")
	}
	return nil
}

// stamp checks a caller-supplied tenant on a new entity. Empty means "this scope".
func (t *scopedTx) stamp(given string) (string, error) {
	if given != "" && given != t.tenantID {
		return "", domain.ErrCrossTenantWrite
	}
	return t.tenantID, nil
}

func (t *scopedTx) now() time.Time {
	return t.store.now().UTC()
}

type tenantOwned interface {
	rowTenant() string
}

// getScoped loads a row by id inside the scope's tenant. Rows of other
// tenants are indistinguishable from missing ones.
func getScoped[M any](t *scopedTx, id, what string) (M, error) {
	var row M
	err := t.scoped(&row).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, domain.NewError(domain.CodeNotFound, what+" not found")
	}
	if err != nil {
		return row, fmt.Errorf("load %s: %w", what, err)
	}
	return row, nil
}

// loadForWrite probes a row by id before a mutation so that a target owned by
// another tenant fails with CROSS_TENANT_WRITE instead of silently matching
// zero rows.
func loadForWrite[M any, PM interface {
	*M
	tenantOwned
}](t *scopedTx, id, what string) (M, error) {
	var row M
	err := t.tx.Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, domain.NewError(domain.CodeNotFound, what+" not found")
	}
	if err != nil {
		return row, fmt.Errorf("load %s: %w", what, err)
	}
	if PM(&row).rowTenant() != t.tenantID {
		var zero M
		return zero, domain.NewError(domain.CodeCrossTenantWrite, what+" belongs to another tenant")
	}
	return row, nil
}

// claimID checks that a client-chosen id is free before an insert. An id
// taken in this tenant is a validation failure and one taken in another
// tenant is a cross-tenant write.
func claimID[M any, PM interface {
	*M
	tenantOwned
}](t *scopedTx, id, what string) error {
	_, err := loadForWrite[M, PM](t, id, what)
	switch {
	case err == nil:
		return domain.NewError(domain.CodeValidationFailed, what+" already exists")
	case errors.Is(err, domain.ErrNotFound):
		return nil
	default:
		return err
	}
}
