package ports

import (
	"context"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

// EventHandler receives one event. Handlers on the same subscription run
// sequentially in broker order.
type EventHandler func(ctx context.Context, event domain.DomainEvent)

type Subscription interface {
	Channel() string
	// Unsubscribe stops the dispatch loop and returns once no handler can run.
	Unsubscribe() error
}

type EventBus interface {
	Publish(ctx context.Context, channel string, event domain.DomainEvent) error
	Subscribe(ctx context.Context, channel string, handler EventHandler) (Subscription, error)
}

// EventPublisher is the durability-aware publish path used by mutation code.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, event domain.DomainEvent, durability domain.Durability) error
}

// EventCodec turns events into wire bytes and back, validating both ways.
type EventCodec interface {
	Encode(event domain.DomainEvent) ([]byte, error)
	Decode(data []byte) (domain.DomainEvent, error)
}
