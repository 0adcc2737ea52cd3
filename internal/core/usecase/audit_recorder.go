package usecase

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

// AuditRecorder appends activity records through the caller's scoped
// transaction, so a record exists exactly when its mutation commits.
type AuditRecorder struct {
	now func() time.Time
}

func NewAuditRecorder() *AuditRecorder {
	return &AuditRecorder{now: time.Now}
}

// Record writes one activity record. The tenant comes from tx and the actor
// from the scope the tx was opened with. A "projectId" string in metadata, or
// the actor's project, fills the record's project column.
func (r *AuditRecorder) Record(
	_ context.Context,
	tx ports.ActivityWriter,
	action domain.Action,
	entityType domain.EntityType,
	entityID string,
	metadata map[string]any,
) (domain.ActivityRecord, error) {
	actor, ok := tx.Actor()
	if !ok || actor.UserID == "" {
		return domain.ActivityRecord{}, domain.ErrActorRequired
	}
	if entityID == "" {
		return domain.ActivityRecord{}, domain.NewError(domain.CodeValidationFailed, "entity id is required")
	}

	projectID := actor.ProjectID
	if v, ok := metadata["projectId"].(string); ok && v != "" {
		projectID = v
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	return tx.AppendActivity(domain.ActivityRecord{
		TenantID:    tx.TenantID(),
		ProjectID:   projectID,
		ActorUserID: actor.UserID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Metadata:    metadata,
		CreatedAt:   r.now().UTC(),
	})
}

// List pages activity newest first.
func (r *AuditRecorder) List(ctx context.Context, scope ports.TenantScope, filter domain.ActivityFilter) ([]domain.ActivityRecord, error) {
	if filter.ProjectID != "" {
		if err := domain.ValidateID(filter.ProjectID); err != nil {
			return nil, err
		}
	}
	if filter.EntityID != "" {
		if err := domain.ValidateID(filter.EntityID); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}

	var out []domain.ActivityRecord
	err := scope.Read(ctx, func(tx ports.ScopedTx) error {
		var err error
		out, err = tx.ListActivity(filter)
		return err
	})
	return out, err
}
