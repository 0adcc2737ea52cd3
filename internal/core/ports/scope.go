package ports

import (
	"context"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

// ScopeOpener hands out tenant-bound handles. It is the only way core code
// reaches tenant data.
type ScopeOpener interface {
	OpenTenantScope(tenantID string, actor *domain.ActorContext) (TenantScope, error)
	OpenUserScope(tenantID, userID string, actor *domain.ActorContext) (UserScope, error)
}

// TenantScope runs work in transactions bound to one tenant.
type TenantScope interface {
	TenantID() string
	Actor() (domain.ActorContext, bool)
	Read(ctx context.Context, fn func(tx ScopedTx) error) error
	Write(ctx context.Context, fn func(tx ScopedTx) error) error
}

// UserScope is the personal variant, additionally bound to one owner.
type UserScope interface {
	TenantID() string
	OwnerID() string
	Read(ctx context.Context, fn func(tx PersonalTx) error) error
	Write(ctx context.Context, fn func(tx PersonalTx) error) error
}

// ActivityWriter is the part of a scoped transaction the audit recorder needs.
type ActivityWriter interface {
	TenantID() string
	Actor() (domain.ActorContext, bool)
	AppendActivity(rec domain.ActivityRecord) (domain.ActivityRecord, error)
}

// ScopedTx is a transaction bound to one tenant. Every method carries the
// tenant predicate; there is no way to issue an unfiltered statement through it.
type ScopedTx interface {
	ActivityWriter

	GetMember(userID string) (domain.Member, error)
	ListMembers(activeOnly bool) ([]domain.Member, error)
	CreateMember(m domain.Member) (domain.Member, error)
	SetMemberRole(userID string, role domain.Role) (previous domain.Role, err error)
	DeactivateMember(userID string) error

	GetProject(id string) (domain.Project, error)
	ListProjects() ([]domain.Project, error)
	CreateProject(p domain.Project) (domain.Project, error)
	UpdateProject(p domain.Project) (domain.Project, error)
	DeleteProject(id string) (domain.Project, error)

	AddProjectMember(projectID, userID string) (domain.ProjectMember, error)
	RemoveProjectMember(projectID, userID string) error
	IsProjectMember(projectID, userID string) (bool, error)
	ListProjectMembers(projectID string) ([]domain.ProjectMember, error)

	GetTask(id string) (domain.Task, error)
	ListTasks(projectID string) ([]domain.Task, error)
	CreateTask(t domain.Task) (domain.Task, error)
	UpdateTask(id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(id string) (domain.Task, error)

	LinkAccount(l domain.ExternalLink) (domain.ExternalLink, error)
	UnlinkAccount(userID, provider string) (domain.ExternalLink, error)
	ListLinks(userID string) ([]domain.ExternalLink, error)
	// ListPendingRevocations returns dropped identities whose external grant
	// has not been confirmed revoked yet.
	ListPendingRevocations() ([]domain.ExternalLink, error)
	ClearPendingRevocation(provider, externalID string) error

	ListActivity(filter domain.ActivityFilter) ([]domain.ActivityRecord, error)
}

// PersonalTx adds the owner-filtered partition on top of the tenant one.
type PersonalTx interface {
	ScopedTx
	OwnerID() string

	ListDocuments() ([]domain.Document, error)
	CreateDocument(d domain.Document) (domain.Document, error)
	DeleteDocument(id string) (domain.Document, error)
}

// TenantDirectory lists tenants. Tenants are global, so this lives outside any scope.
type TenantDirectory interface {
	ListTenants(ctx context.Context) ([]domain.Tenant, error)
	GetTenant(ctx context.Context, id string) (domain.Tenant, error)
}
