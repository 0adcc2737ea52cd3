package usecase

import (
	"context"
	"log/slog"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

// AccountService links members to external identities the bot manages.
type AccountService struct {
	m mutator
}

func NewAccountService(scopes ports.ScopeOpener, audit *AuditRecorder, publisher ports.EventPublisher, log *slog.Logger) *AccountService {
	return &AccountService{m: newMutator(scopes, audit, publisher, log)}
}

// requireSelfOrAdmin lets members manage their own links and admins manage anyone's.
func requireSelfOrAdmin(tx ports.ScopedTx, actor domain.ActorContext, userID string) error {
	if actor.UserID == userID {
		_, err := RequireRole(tx, domain.RoleAdmin, domain.RoleManager, domain.RoleWorker)
		return err
	}
	_, err := RequireRole(tx, domain.RoleAdmin)
	return err
}

func (s *AccountService) List(ctx context.Context, actor domain.ActorContext, userID string) ([]domain.ExternalLink, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return nil, err
	}
	var out []domain.ExternalLink
	err = scope.Read(ctx, func(tx ports.ScopedTx) error {
		if err := requireSelfOrAdmin(tx, actor, userID); err != nil {
			return err
		}
		out, err = tx.ListLinks(userID)
		return err
	})
	return out, err
}

func (s *AccountService) Link(ctx context.Context, actor domain.ActorContext, link domain.ExternalLink) (domain.ExternalLink, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return domain.ExternalLink{}, err
	}
	var linked domain.ExternalLink
	var rec domain.ActivityRecord
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		if err := requireSelfOrAdmin(tx, actor, link.UserID); err != nil {
			return err
		}
		linked, err = tx.LinkAccount(link)
		if err != nil {
			return err
		}
		rec, err = s.m.audit.Record(ctx, tx, domain.ActionLinked, domain.EntityExternalLink, linked.UserID,
			map[string]any{"provider": linked.Provider, "externalId": linked.ExternalID})
		return err
	})
	if err != nil {
		return domain.ExternalLink{}, err
	}
	return linked, s.m.emit(ctx, rec, domain.EventAccountLinked, domain.AccountPayload{
		UserID:     linked.UserID,
		Provider:   linked.Provider,
		ExternalID: linked.ExternalID,
	}, domain.MustDeliverOrRetry)
}

func (s *AccountService) Unlink(ctx context.Context, actor domain.ActorContext, userID, provider string) error {
	scope, err := s.m.open(actor)
	if err != nil {
		return err
	}
	var removed domain.ExternalLink
	var rec domain.ActivityRecord
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		if err := requireSelfOrAdmin(tx, actor, userID); err != nil {
			return err
		}
		removed, err = tx.UnlinkAccount(userID, provider)
		if err != nil {
			return err
		}
		rec, err = s.m.audit.Record(ctx, tx, domain.ActionUnlinked, domain.EntityExternalLink, userID,
			map[string]any{"provider": removed.Provider, "externalId": removed.ExternalID})
		return err
	})
	if err != nil {
		return err
	}
	return s.m.emit(ctx, rec, domain.EventAccountUnlinked, domain.AccountPayload{
		UserID:     removed.UserID,
		Provider:   removed.Provider,
		ExternalID: removed.ExternalID,
	}, domain.MustDeliverOrRetry)
}
