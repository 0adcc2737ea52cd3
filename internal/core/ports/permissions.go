package ports

import "context"

// ExternalGrant is the desired permission of one external identity.
type ExternalGrant struct {
	TenantID   string
	Provider   string
	ExternalID string
	Role       string
}

// ExternalPermissions is the third-party system the bot keeps in sync. Both
// calls are idempotent on the remote side.
type ExternalPermissions interface {
	Grant(ctx context.Context, grant ExternalGrant) error
	Revoke(ctx context.Context, provider, externalID string) error
}
