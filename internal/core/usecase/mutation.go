package usecase

import (
	"context"
	"log/slog"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

// mutator bundles what every write use case needs: open a scope for the
// actor, record the change in the same transaction, then publish.
type mutator struct {
	scopes    ports.ScopeOpener
	audit     *AuditRecorder
	publisher ports.EventPublisher
	log       *slog.Logger
}

func newMutator(scopes ports.ScopeOpener, audit *AuditRecorder, publisher ports.EventPublisher, log *slog.Logger) mutator {
	if audit == nil {
		audit = NewAuditRecorder()
	}
	if log == nil {
		log = slog.Default()
	}
	return mutator{scopes: scopes, audit: audit, publisher: publisher, log: log}
}

func (m mutator) open(actor domain.ActorContext) (ports.TenantScope, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return m.scopes.OpenTenantScope(actor.TenantID, &actor)
}

// emit publishes the event describing rec. It runs after commit; the tenant
// of the event is always the tenant of the record.
func (m mutator) emit(ctx context.Context, rec domain.ActivityRecord, t domain.EventType, payload any, durability domain.Durability) error {
	if m.publisher == nil {
		return nil
	}
	event, err := domain.EventFromActivity(rec, t, payload)
	if err != nil {
		return err
	}
	return m.publisher.Publish(ctx, domain.ChannelFor(t), event, durability)
}
