package ports

import (
	"context"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

type SessionRepository interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error)
	Upsert(ctx context.Context, session domain.Session) error
}

type BearerVerifier interface {
	Verify(token string) (domain.BearerClaims, error)
}

// ProjectAccessChecker is the access-control authority shared by the web
// service and the gateway.
type ProjectAccessChecker interface {
	HasProjectAccess(ctx context.Context, tenantID, userID, projectID string) (bool, error)
}
