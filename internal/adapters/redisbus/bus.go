// Package redisbus carries domain events over Redis pub/sub.
package redisbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

const (
	defaultChannelSize = 1024
	defaultSendTimeout = 5 * time.Second
)

// Bus is an at-least-once, non-persistent event bus. A subscriber that is not
// connected when an event is published never sees it.
//
// Each subscription buffers up to channelSize messages ahead of its handler.
// When the buffer stays full for sendTimeout the Redis client drops the
// message rather than stall the connection for every other subscriber. The
// drop is reported through the client logger; RouteClientLogs sends it to
// slog. Consumers that must not lose effects (the permission bot) pair the
// bus with a reconcile pass.
type Bus struct {
	rdb         *redis.Client
	owned       bool
	codec       ports.EventCodec
	log         *slog.Logger
	channelSize int
	sendTimeout time.Duration
}

var _ ports.EventBus = (*Bus)(nil)

type Option func(*Bus)

// WithChannelSize sets the per-subscription receive buffer.
func WithChannelSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.channelSize = n
		}
	}
}

// WithSendTimeout sets how long a full subscription buffer may block before
// the message is dropped.
func WithSendTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.sendTimeout = d
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// New dials Redis with opts. The bus owns the client and closes it on Close.
func New(opts *redis.Options, codec ports.EventCodec, options ...Option) *Bus {
	b := NewFromClient(redis.NewClient(opts), codec, options...)
	b.owned = true
	return b
}

// NewFromClient wraps an existing client. Close leaves the client open.
func NewFromClient(rdb *redis.Client, codec ports.EventCodec, options ...Option) *Bus {
	b := &Bus{rdb: rdb, codec: codec, log: slog.Default(), channelSize: defaultChannelSize, sendTimeout: defaultSendTimeout}
	for _, opt := range options {
		opt(b)
	}
	return b
}

func (b *Bus) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return domain.WrapError(domain.CodeBrokerUnavailable, "ping broker", err)
	}
	return nil
}

func (b *Bus) Close() error {
	if !b.owned {
		return nil
	}
	return b.rdb.Close()
}

// Publish succeeds once the broker accepted the message.
func (b *Bus) Publish(ctx context.Context, channel string, event domain.DomainEvent) error {
	data, err := b.codec.Encode(event)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return domain.WrapError(domain.CodeBrokerUnavailable, "publish to "+channel, err)
	}
	return nil
}

// Subscribe returns after the broker confirmed the subscription. handler runs
// on one goroutine owned by the subscription, in broker order. Cancelling ctx
// also ends the subscription.
func (b *Bus) Subscribe(ctx context.Context, channel string, handler ports.EventHandler) (ports.Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, domain.WrapError(domain.CodeBrokerUnavailable, "subscribe to "+channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		channel: channel,
		pubsub:  pubsub,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	msgs := pubsub.Channel(
		redis.WithChannelSize(b.channelSize),
		redis.WithChannelSendTimeout(b.sendTimeout),
	)

	go func() {
		defer close(sub.done)
		defer sub.stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				event, err := b.codec.Decode([]byte(msg.Payload))
				if err != nil {
					b.log.Warn("dropping undecodable event", "channel", msg.Channel, "error", err)
					continue
				}
				// A concurrent Unsubscribe may have won the select above.
				if subCtx.Err() != nil {
					return
				}
				handler(subCtx, event)
			}
		}
	}()

	return sub, nil
}

type subscription struct {
	channel string
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	done    chan struct{}

	once sync.Once
	err  error
}

func (s *subscription) Channel() string { return s.channel }

func (s *subscription) stop() {
	s.once.Do(func() {
		s.cancel()
		s.err = s.pubsub.Close()
	})
}

// Unsubscribe must not be called from inside the subscription's own handler.
func (s *subscription) Unsubscribe() error {
	s.stop()
	<-s.done
	return s.err
}

type clientLogger struct{ log *slog.Logger }

func (l clientLogger) Printf(ctx context.Context, format string, v ...any) {
	l.log.WarnContext(ctx, fmt.Sprintf(format, v...), "component", "redis")
}

// RouteClientLogs sends the Redis client's own diagnostics, dropped pub/sub
// messages included, to log. The client logger is process-wide.
func RouteClientLogs(log *slog.Logger) {
	if log == nil {
		return
	}
	redis.SetLogger(clientLogger{log: log})
}
