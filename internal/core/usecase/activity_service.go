package usecase

import (
	"context"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

// ActivityService exposes the audit trail to members.
type ActivityService struct {
	scopes ports.ScopeOpener
	audit  *AuditRecorder
}

func NewActivityService(scopes ports.ScopeOpener, audit *AuditRecorder) *ActivityService {
	if audit == nil {
		audit = NewAuditRecorder()
	}
	return &ActivityService{scopes: scopes, audit: audit}
}

// List pages activity newest first. Admins and managers read the whole
// tenant; workers must filter by a project they can access.
func (s *ActivityService) List(ctx context.Context, actor domain.ActorContext, filter domain.ActivityFilter) ([]domain.ActivityRecord, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	scope, err := s.scopes.OpenTenantScope(actor.TenantID, &actor)
	if err != nil {
		return nil, err
	}

	err = scope.Read(ctx, func(tx ports.ScopedTx) error {
		member, err := RequireRole(tx, domain.RoleAdmin, domain.RoleManager, domain.RoleWorker)
		if err != nil {
			return err
		}
		if member.Role != domain.RoleWorker {
			return nil
		}
		if filter.ProjectID == "" {
			return domain.NewError(domain.CodeAccessDenied, "workers must filter activity by project")
		}
		ok, err := projectAccess(tx, actor.UserID, filter.ProjectID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewError(domain.CodeNotFound, "project not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.audit.List(ctx, scope, filter)
}
