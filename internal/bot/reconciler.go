package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

// Reconciler periodically re-derives every external link of every tenant and
// retries pending revocations. It repairs effects the consumer missed while
// offline or dropped after retries. Links of a disabled tenant are revoked.
type Reconciler struct {
	tenants  ports.TenantDirectory
	scopes   ports.ScopeOpener
	consumer *Consumer
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewReconciler(tenants ports.TenantDirectory, scopes ports.ScopeOpener, consumer *Consumer, interval time.Duration, log *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{tenants: tenants, scopes: scopes, consumer: consumer, interval: interval, log: log, now: time.Now}
}

// Run reconciles immediately and then every interval until ctx ends.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.ReconcileOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("reconcile pass incomplete", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type linkedMember struct {
	member domain.Member
	found  bool
	links  []domain.ExternalLink
}

func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	started := r.now()
	tenants, err := r.tenants.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	var errs []error
	synced := 0
	for _, tenant := range tenants {
		n, err := r.reconcileTenant(ctx, tenant)
		synced += n
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant.ID, err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	r.log.Info("reconcile pass finished", "tenants", len(tenants), "links", synced, "took", r.now().Sub(started))
	return errors.Join(errs...)
}

func (r *Reconciler) reconcileTenant(ctx context.Context, tenant domain.Tenant) (int, error) {
	scope, err := r.scopes.OpenTenantScope(tenant.ID, nil)
	if err != nil {
		return 0, err
	}
	byUser := map[string]*linkedMember{}
	var pending []domain.ExternalLink
	err = scope.Read(ctx, func(tx ports.ScopedTx) error {
		links, err := tx.ListLinks("")
		if err != nil {
			return err
		}
		for _, link := range links {
			lm, ok := byUser[link.UserID]
			if !ok {
				lm = &linkedMember{}
				byUser[link.UserID] = lm
				m, err := tx.GetMember(link.UserID)
				switch {
				case err == nil:
					lm.member, lm.found = m, true
				case !errors.Is(err, domain.ErrNotFound):
					return err
				}
			}
			lm.links = append(lm.links, link)
		}
		pending, err = tx.ListPendingRevocations()
		return err
	})
	if err != nil {
		return 0, err
	}

	var errs []error
	n := 0
	for _, lm := range byUser {
		active := tenant.Active && lm.found && lm.member.Active
		for _, link := range lm.links {
			n++
			errs = append(errs, r.consumer.syncLink(ctx, link, lm.member, active))
		}
	}
	for _, link := range pending {
		n++
		errs = append(errs, r.consumer.revokePending(ctx, tenant.ID, link, tenant.Active))
	}
	return n, errors.Join(errs...)
}
