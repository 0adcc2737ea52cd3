package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

const tracerName = "github.com/atvirokodosprendimai/tenantsync/internal/core/usecase"

type PublisherConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

func (c PublisherConfig) withDefaults() PublisherConfig {
	if c.InitialInterval <= 0 {
		c.InitialInterval = 100 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 2 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	return c
}

// Publisher validates events and publishes them with an explicit durability.
// BestEffort swallows broker outages after logging them. MustDeliverOrRetry
// retries with exponential backoff, then parks the event in the outbox when
// one is configured, else returns BROKER_UNAVAILABLE.
type Publisher struct {
	bus    ports.EventBus
	codec  *EventCodec
	outbox ports.OutboxRepository
	log    *slog.Logger
	cfg    PublisherConfig
	tracer trace.Tracer

	publishedTotal atomic.Int64
	droppedTotal   atomic.Int64
	parkedTotal    atomic.Int64
	failedTotal    atomic.Int64
}

type PublisherMetrics struct {
	PublishedTotal int64
	DroppedTotal   int64
	ParkedTotal    int64
	FailedTotal    int64
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher builds a publisher. outbox may be nil.
func NewPublisher(bus ports.EventBus, codec *EventCodec, outbox ports.OutboxRepository, log *slog.Logger, cfg PublisherConfig) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		bus:    bus,
		codec:  codec,
		outbox: outbox,
		log:    log,
		cfg:    cfg.withDefaults(),
		tracer: otel.Tracer(tracerName),
	}
}

func (p *Publisher) Publish(ctx context.Context, channel string, event domain.DomainEvent, durability domain.Durability) error {
	if channel == "" {
		channel = domain.ChannelFor(event.Type)
	}
	ctx, span := p.tracer.Start(ctx, "event.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", channel),
			attribute.String("event.type", string(event.Type)),
			attribute.String("event.id", event.ID),
			attribute.String("event.durability", durability.String()),
		))
	defer span.End()

	err := p.publish(ctx, channel, event, durability)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (p *Publisher) publish(ctx context.Context, channel string, event domain.DomainEvent, durability domain.Durability) error {
	if err := p.codec.Validate(event); err != nil {
		return err
	}

	if durability != domain.MustDeliverOrRetry {
		if err := p.bus.Publish(ctx, channel, event); err != nil {
			p.droppedTotal.Add(1)
			p.log.Warn("best-effort event dropped",
				"event_id", event.ID, "event_type", event.Type, "tenant_id", event.TenantID, "error", err)
			return nil
		}
		p.publishedTotal.Add(1)
		return nil
	}

	err := backoff.Retry(func() error {
		return p.bus.Publish(ctx, channel, event)
	}, backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), p.cfg.MaxRetries), ctx))
	if err == nil {
		p.publishedTotal.Add(1)
		return nil
	}

	if p.outbox != nil {
		qerr := p.outbox.Enqueue(ctx, channel, event, err.Error())
		if qerr == nil {
			p.parkedTotal.Add(1)
			p.log.Warn("must-deliver event parked in outbox",
				"event_id", event.ID, "event_type", event.Type, "tenant_id", event.TenantID, "error", err)
			return nil
		}
		err = errors.Join(err, qerr)
	}

	p.failedTotal.Add(1)
	p.log.Error("must-deliver event failed",
		"event_id", event.ID, "event_type", event.Type, "tenant_id", event.TenantID, "error", err)
	return domain.WrapError(domain.CodeBrokerUnavailable, "publish "+string(event.Type), err)
}

func (p *Publisher) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialInterval
	b.MaxInterval = p.cfg.MaxInterval
	b.MaxElapsedTime = 0
	return b
}

func (p *Publisher) Metrics() PublisherMetrics {
	return PublisherMetrics{
		PublishedTotal: p.publishedTotal.Load(),
		DroppedTotal:   p.droppedTotal.Load(),
		ParkedTotal:    p.parkedTotal.Load(),
		FailedTotal:    p.failedTotal.Load(),
	}
}
