// Package bot keeps an external permission system in line with tenant
// membership by consuming account and role events.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

type Config struct {
	DedupWindow     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

func (c Config) withDefaults() Config {
	if c.DedupWindow <= 0 {
		c.DedupWindow = 4096
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 200 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 5 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	return c
}

// Consumer applies account and role events to the external system. Every
// handler re-reads current state through a tenant scope instead of trusting
// the event payload, so redelivery and reordering converge.
type Consumer struct {
	cfg    Config
	scopes ports.ScopeOpener
	perms  ports.ExternalPermissions
	roles  RoleMap
	seen   *recentIDs
	log    *slog.Logger

	mu   sync.Mutex
	subs []ports.Subscription
}

func NewConsumer(cfg Config, scopes ports.ScopeOpener, perms ports.ExternalPermissions, roles RoleMap, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Consumer{
		cfg:    cfg,
		scopes: scopes,
		perms:  perms,
		roles:  roles,
		seen:   newRecentIDs(cfg.DedupWindow),
		log:    log,
	}
}

// Channels are the bus channels the bot consumes.
func Channels() []string {
	return []string{
		domain.ChannelFor(domain.EventAccountLinked),
		domain.ChannelFor(domain.EventRoleChanged),
	}
}

func (c *Consumer) Start(ctx context.Context, bus ports.EventBus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, channel := range Channels() {
		sub, err := bus.Subscribe(ctx, channel, c.Handle)
		if err != nil {
			for _, s := range c.subs {
				_ = s.Unsubscribe()
			}
			c.subs = nil
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		c.subs = append(c.subs, sub)
	}
	return nil
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	var errs []error
	for _, s := range subs {
		errs = append(errs, s.Unsubscribe())
	}
	return errors.Join(errs...)
}

// Handle processes one event. Failures are logged and the event dropped;
// the reconciler repairs whatever was missed. An event id counts as seen only
// once its effect was applied.
func (c *Consumer) Handle(ctx context.Context, event domain.DomainEvent) {
	switch event.Type {
	case domain.EventAccountLinked, domain.EventAccountUnlinked, domain.EventRoleChanged, domain.EventAccountDeactivated:
	default:
		return
	}
	if c.seen.contains(event.ID) {
		c.log.Debug("duplicate event dropped", "event_id", event.ID, "event_type", event.Type)
		return
	}

	log := c.log.With("event_id", event.ID, "event_type", event.Type, "tenant_id", event.TenantID)
	if err := c.apply(ctx, event); err != nil {
		log.Error("bot event dropped", "err", err)
		return
	}
	c.seen.add(event.ID)
	log.Debug("bot event applied")
}

func (c *Consumer) apply(ctx context.Context, event domain.DomainEvent) error {
	switch event.Type {
	case domain.EventAccountUnlinked:
		var p domain.AccountPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return c.revokeUnlinked(ctx, event.TenantID, p)
	default:
		var p struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return c.SyncUser(ctx, event.TenantID, p.UserID)
	}
}

// userState is what the bot derives permissions from.
type userState struct {
	member domain.Member
	found  bool
	links  []domain.ExternalLink
}

func (c *Consumer) loadUser(ctx context.Context, tenantID, userID string) (userState, error) {
	scope, err := c.scopes.OpenTenantScope(tenantID, nil)
	if err != nil {
		return userState{}, err
	}
	var st userState
	err = scope.Read(ctx, func(tx ports.ScopedTx) error {
		m, err := tx.GetMember(userID)
		switch {
		case err == nil:
			st.member, st.found = m, true
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		st.links, err = tx.ListLinks(userID)
		return err
	})
	return st, err
}

// SyncUser sets every external link of the user to what the current
// membership implies: the mapped role while active, nothing otherwise.
func (c *Consumer) SyncUser(ctx context.Context, tenantID, userID string) error {
	if err := domain.ValidateID(userID); err != nil {
		return err
	}
	st, err := c.loadUser(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("load user state: %w", err)
	}

	var errs []error
	for _, link := range st.links {
		errs = append(errs, c.syncLink(ctx, link, st.member, st.found && st.member.Active))
	}
	return errors.Join(errs...)
}

func (c *Consumer) syncLink(ctx context.Context, link domain.ExternalLink, member domain.Member, active bool) error {
	if !active {
		return c.retry(ctx, func() error {
			return c.perms.Revoke(ctx, link.Provider, link.ExternalID)
		})
	}
	role, ok := c.roles.Lookup(link.Provider, member.Role)
	if !ok {
		return fmt.Errorf("no external role for %s on %s", member.Role, link.Provider)
	}
	return c.retry(ctx, func() error {
		return c.perms.Grant(ctx, ports.ExternalGrant{
			TenantID:   link.TenantID,
			Provider:   link.Provider,
			ExternalID: link.ExternalID,
			Role:       role,
		})
	})
}

// revokeUnlinked revokes the identity named by the event unless it has been
// linked again since.
func (c *Consumer) revokeUnlinked(ctx context.Context, tenantID string, p domain.AccountPayload) error {
	if p.Provider == "" || p.ExternalID == "" {
		return domain.NewError(domain.CodeValidationFailed, "unlink payload lacks identity")
	}
	st, err := c.loadUser(ctx, tenantID, p.UserID)
	if err != nil {
		return fmt.Errorf("load user state: %w", err)
	}
	for _, link := range st.links {
		if link.Provider == p.Provider && link.ExternalID == p.ExternalID {
			return nil
		}
	}
	return c.revokePending(ctx, tenantID, domain.ExternalLink{
		TenantID:   tenantID,
		UserID:     p.UserID,
		Provider:   p.Provider,
		ExternalID: p.ExternalID,
	}, true)
}

// revokePending revokes a dropped identity and, when clear is set, forgets
// the pending revocation stored for it. Disabled tenants accept no writes, so
// their revocations are kept and repeated by every reconcile pass.
func (c *Consumer) revokePending(ctx context.Context, tenantID string, link domain.ExternalLink, clear bool) error {
	err := c.retry(ctx, func() error {
		return c.perms.Revoke(ctx, link.Provider, link.ExternalID)
	})
	if err != nil || !clear {
		return err
	}
	scope, err := c.scopes.OpenTenantScope(tenantID, nil)
	if err != nil {
		return err
	}
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		return tx.ClearPendingRevocation(link.Provider, link.ExternalID)
	})
	if err != nil {
		c.log.Warn("revoked identity stays pending", "tenant_id", tenantID,
			"provider", link.Provider, "external_id", link.ExternalID, "err", err)
	}
	return nil
}

func (c *Consumer) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.MaxInterval = c.cfg.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.MaxRetries), ctx))
}
