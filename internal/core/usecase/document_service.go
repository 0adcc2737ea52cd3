package usecase

import (
	"context"
	"log/slog"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

// DocumentService works on the actor's personal partition. File bytes live
// with the upload collaborator; only metadata is kept here.
type DocumentService struct {
	scopes ports.ScopeOpener
	audit  *AuditRecorder
	log    *slog.Logger
}

func NewDocumentService(scopes ports.ScopeOpener, audit *AuditRecorder, log *slog.Logger) *DocumentService {
	if audit == nil {
		audit = NewAuditRecorder()
	}
	if log == nil {
		log = slog.Default()
	}
	return &DocumentService{scopes: scopes, audit: audit, log: log}
}

func (s *DocumentService) open(actor domain.ActorContext) (ports.UserScope, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return s.scopes.OpenUserScope(actor.TenantID, actor.UserID, &actor)
}

func (s *DocumentService) List(ctx context.Context, actor domain.ActorContext) ([]domain.Document, error) {
	scope, err := s.open(actor)
	if err != nil {
		return nil, err
	}
	var out []domain.Document
	err = scope.Read(ctx, func(tx ports.PersonalTx) error {
		out, err = tx.ListDocuments()
		return err
	})
	return out, err
}

func (s *DocumentService) Register(ctx context.Context, actor domain.ActorContext, doc domain.Document) (domain.Document, error) {
	scope, err := s.open(actor)
	if err != nil {
		return domain.Document{}, err
	}
	var created domain.Document
	err = scope.Write(ctx, func(tx ports.PersonalTx) error {
		created, err = tx.CreateDocument(doc)
		if err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, tx, domain.ActionCreated, domain.EntityDocument, created.ID,
			map[string]any{"name": created.Name, "sizeBytes": created.SizeBytes})
		return err
	})
	return created, err
}

func (s *DocumentService) Delete(ctx context.Context, actor domain.ActorContext, id string) error {
	scope, err := s.open(actor)
	if err != nil {
		return err
	}
	return scope.Write(ctx, func(tx ports.PersonalTx) error {
		deleted, err := tx.DeleteDocument(id)
		if err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, tx, domain.ActionDeleted, domain.EntityDocument, deleted.ID,
			map[string]any{"name": deleted.Name})
		return err
	})
}
