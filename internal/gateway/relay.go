package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

// Relay feeds bus events into the local registry. It subscribes to every
// domain channel plus the gateway mirror channel.
type Relay struct {
	bus      ports.EventBus
	registry *Registry
	log      *slog.Logger
	tracer   trace.Tracer

	mu   sync.Mutex
	subs []ports.Subscription
}

func NewRelay(bus ports.EventBus, registry *Registry, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		bus:      bus,
		registry: registry,
		log:      log,
		tracer:   otel.Tracer("github.com/atvirokodosprendimai/tenantsync/internal/gateway"),
	}
}

// Channels are the bus channels a relay listens on.
func Channels() []string {
	return append(domain.DomainChannels(), domain.BroadcastChannel)
}

// Start subscribes to all channels. On failure nothing stays subscribed.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.subs) > 0 {
		return errors.New("relay already started")
	}
	for _, channel := range Channels() {
		sub, err := r.bus.Subscribe(ctx, channel, r.handle)
		if err != nil {
			for _, s := range r.subs {
				_ = s.Unsubscribe()
			}
			r.subs = nil
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		r.subs = append(r.subs, sub)
	}
	return nil
}

func (r *Relay) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	var errs []error
	for _, s := range subs {
		errs = append(errs, s.Unsubscribe())
	}
	return errors.Join(errs...)
}

func (r *Relay) handle(ctx context.Context, event domain.DomainEvent) {
	_, span := r.tracer.Start(ctx, "gateway.relay",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.type", string(event.Type)),
			attribute.String("event.id", event.ID),
			attribute.String("tenant.id", event.TenantID),
		))
	defer span.End()

	frame, err := json.Marshal(event)
	if err != nil {
		r.log.Error("encode broadcast frame", "event_id", event.ID, "err", err)
		return
	}
	sent := r.registry.Deliver(event, frame)
	span.SetAttributes(attribute.Int("gateway.recipients", sent))
}
