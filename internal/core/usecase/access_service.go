package usecase

import (
	"context"
	"errors"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

// AccessService is the single access-control authority. The web service and
// the gateway both ask it, and it always reads current state.
type AccessService struct {
	scopes ports.ScopeOpener
}

func NewAccessService(scopes ports.ScopeOpener) *AccessService {
	return &AccessService{scopes: scopes}
}

var _ ports.ProjectAccessChecker = (*AccessService)(nil)

// HasProjectAccess reports whether an active member of tenantID may see
// projectID. Admins see every project of their tenant, everyone else needs a
// project membership. A project of another tenant is never accessible.
func (s *AccessService) HasProjectAccess(ctx context.Context, tenantID, userID, projectID string) (bool, error) {
	if err := domain.ValidateID(projectID); err != nil {
		return false, err
	}
	scope, err := s.scopes.OpenTenantScope(tenantID, nil)
	if err != nil {
		return false, err
	}

	allowed := false
	err = scope.Read(ctx, func(tx ports.ScopedTx) error {
		var err error
		allowed, err = projectAccess(tx, userID, projectID)
		return err
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// projectAccess evaluates the access rule inside an open scoped transaction.
func projectAccess(tx ports.ScopedTx, userID, projectID string) (bool, error) {
	member, err := tx.GetMember(userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !member.Active {
		return false, nil
	}
	if _, err := tx.GetProject(projectID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if member.Role == domain.RoleAdmin {
		return true, nil
	}
	return tx.IsProjectMember(projectID, userID)
}

// RequireRole loads the actor's member row and checks it holds one of roles.
func RequireRole(tx ports.ScopedTx, roles ...domain.Role) (domain.Member, error) {
	actor, ok := tx.Actor()
	if !ok {
		return domain.Member{}, domain.ErrActorRequired
	}
	member, err := tx.GetMember(actor.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Member{}, domain.NewError(domain.CodeAccessDenied, "actor is not a member of this tenant")
	}
	if err != nil {
		return domain.Member{}, err
	}
	if !member.Active {
		return domain.Member{}, domain.NewError(domain.CodeAccessDenied, "actor is deactivated")
	}
	for _, role := range roles {
		if member.Role == role {
			return member, nil
		}
	}
	return domain.Member{}, domain.NewError(domain.CodeAccessDenied, "role not permitted")
}
