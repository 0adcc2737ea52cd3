package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

type flakyBus struct {
	busStub
	failures int
	calls    int
}

func (b *flakyBus) Publish(ctx context.Context, channel string, event domain.DomainEvent) error {
	b.calls++
	if b.calls <= b.failures {
		return domain.ErrBrokerUnavailable
	}
	return b.busStub.Publish(ctx, channel, event)
}

type parkingOutbox struct {
	outboxRepoStub
	parked   []domain.DomainEvent
	channels []string
	err      error
}

func (o *parkingOutbox) Enqueue(_ context.Context, channel string, event domain.DomainEvent, _ string) error {
	if o.err != nil {
		return o.err
	}
	o.parked = append(o.parked, event)
	o.channels = append(o.channels, channel)
	return nil
}

var fastRetry = PublisherConfig{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxRetries: 2}

func roleChangedEvent() domain.DomainEvent {
	return validEvent(domain.EventRoleChanged, `{"userId":"u1","role":"MANAGER"}`)
}

func TestPublisherBestEffortSwallowsBrokerOutage(t *testing.T) {
	bus := &flakyBus{failures: 100}
	p := NewPublisher(bus, MustEventCodec(), nil, nil, fastRetry)

	err := p.Publish(context.Background(), "", roleChangedEvent(), domain.BestEffort)
	if err != nil {
		t.Fatalf("best effort must not surface broker errors, got %v", err)
	}
	if bus.calls != 1 {
		t.Fatalf("best effort must not retry, got %d calls", bus.calls)
	}
	if m := p.Metrics(); m.DroppedTotal != 1 {
		t.Fatalf("expected one dropped event, got %+v", m)
	}
}

func TestPublisherMustDeliverRetriesTransientFailures(t *testing.T) {
	bus := &flakyBus{failures: 2}
	p := NewPublisher(bus, MustEventCodec(), nil, nil, fastRetry)

	if err := p.Publish(context.Background(), "", roleChangedEvent(), domain.MustDeliverOrRetry); err != nil {
		t.Fatalf("expected delivery after retries, got %v", err)
	}
	if bus.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", bus.calls)
	}
	if len(bus.channels) != 1 || bus.channels[0] != "tenantsync.events.role" {
		t.Fatalf("expected default role channel, got %v", bus.channels)
	}
}

func TestPublisherMustDeliverSurfacesWithoutOutbox(t *testing.T) {
	bus := &flakyBus{failures: 100}
	p := NewPublisher(bus, MustEventCodec(), nil, nil, fastRetry)

	err := p.Publish(context.Background(), "", roleChangedEvent(), domain.MustDeliverOrRetry)
	if !errors.Is(err, domain.ErrBrokerUnavailable) {
		t.Fatalf("expected broker unavailable, got %v", err)
	}
	if bus.calls != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", bus.calls)
	}
	if m := p.Metrics(); m.FailedTotal != 1 {
		t.Fatalf("expected one failed event, got %+v", m)
	}
}

func TestPublisherMustDeliverParksInOutbox(t *testing.T) {
	bus := &flakyBus{failures: 100}
	outbox := &parkingOutbox{}
	p := NewPublisher(bus, MustEventCodec(), outbox, nil, fastRetry)

	event := roleChangedEvent()
	if err := p.Publish(context.Background(), "", event, domain.MustDeliverOrRetry); err != nil {
		t.Fatalf("parked event should not surface an error, got %v", err)
	}
	if len(outbox.parked) != 1 || outbox.parked[0].ID != event.ID || outbox.channels[0] != "tenantsync.events.role" {
		t.Fatalf("unexpected parked events: %+v", outbox.parked)
	}

	outbox.err = errors.New("disk full")
	err := p.Publish(context.Background(), "", event, domain.MustDeliverOrRetry)
	if !errors.Is(err, domain.ErrBrokerUnavailable) {
		t.Fatalf("expected broker unavailable when parking fails, got %v", err)
	}
}

func TestPublisherRejectsInvalidEventsBeforePublishing(t *testing.T) {
	bus := &flakyBus{}
	p := NewPublisher(bus, MustEventCodec(), nil, nil, fastRetry)

	bad := validEvent(domain.EventAccountLinked, `{"userId":"u1"}`)
	err := p.Publish(context.Background(), "", bad, domain.MustDeliverOrRetry)
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if bus.calls != 0 {
		t.Fatalf("invalid event reached the bus")
	}
}
