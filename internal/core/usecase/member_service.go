package usecase

import (
	"context"
	"log/slog"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

// MemberService manages tenant members. Role changes and deactivations feed
// external permissions, so their events are must-deliver.
type MemberService struct {
	m mutator
}

func NewMemberService(scopes ports.ScopeOpener, audit *AuditRecorder, publisher ports.EventPublisher, log *slog.Logger) *MemberService {
	return &MemberService{m: newMutator(scopes, audit, publisher, log)}
}

func (s *MemberService) List(ctx context.Context, actor domain.ActorContext) ([]domain.Member, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return nil, err
	}
	var out []domain.Member
	err = scope.Read(ctx, func(tx ports.ScopedTx) error {
		out, err = tx.ListMembers(false)
		return err
	})
	return out, err
}

func (s *MemberService) Invite(ctx context.Context, actor domain.ActorContext, member domain.Member) (domain.Member, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return domain.Member{}, err
	}
	var created domain.Member
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		if _, err := RequireRole(tx, domain.RoleAdmin); err != nil {
			return err
		}
		created, err = tx.CreateMember(member)
		if err != nil {
			return err
		}
		_, err = s.m.audit.Record(ctx, tx, domain.ActionCreated, domain.EntityMember, created.UserID,
			map[string]any{"role": string(created.Role), "email": created.Email})
		return err
	})
	return created, err
}

func (s *MemberService) ChangeRole(ctx context.Context, actor domain.ActorContext, userID string, role domain.Role) error {
	scope, err := s.m.open(actor)
	if err != nil {
		return err
	}
	var previous domain.Role
	var rec domain.ActivityRecord
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		if _, err := RequireRole(tx, domain.RoleAdmin); err != nil {
			return err
		}
		previous, err = tx.SetMemberRole(userID, role)
		if err != nil {
			return err
		}
		rec, err = s.m.audit.Record(ctx, tx, domain.ActionRoleChanged, domain.EntityMember, userID,
			map[string]any{"previousRole": string(previous), "role": string(role)})
		return err
	})
	if err != nil {
		return err
	}
	return s.m.emit(ctx, rec, domain.EventRoleChanged,
		domain.RoleChangedPayload{UserID: userID, PreviousRole: previous, Role: role}, domain.MustDeliverOrRetry)
}

func (s *MemberService) Deactivate(ctx context.Context, actor domain.ActorContext, userID string) error {
	scope, err := s.m.open(actor)
	if err != nil {
		return err
	}
	var rec domain.ActivityRecord
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		if _, err := RequireRole(tx, domain.RoleAdmin); err != nil {
			return err
		}
		if userID == actor.UserID {
			return domain.NewError(domain.CodeValidationFailed, "cannot deactivate yourself")
		}
		if err := tx.DeactivateMember(userID); err != nil {
			return err
		}
		rec, err = s.m.audit.Record(ctx, tx, domain.ActionDeactivated, domain.EntityMember, userID, nil)
		return err
	})
	if err != nil {
		return err
	}
	return s.m.emit(ctx, rec, domain.EventAccountDeactivated,
		domain.DeactivatedPayload{UserID: userID}, domain.MustDeliverOrRetry)
}
