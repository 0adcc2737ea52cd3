package sqlite

import (
	"time"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"gorm.io/datatypes"
)

type tenantModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Active    bool      `gorm:"column:active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (tenantModel) TableName() string { return "tenants" }

func (m tenantModel) toDomain() domain.Tenant {
	return domain.Tenant{ID: m.ID, Name: m.Name, Active: m.Active, CreatedAt: m.CreatedAt}
}

type memberModel struct {
	TenantID    string    `gorm:"column:tenant_id;primaryKey"`
	UserID      string    `gorm:"column:user_id;primaryKey"`
	Email       string    `gorm:"column:email;not null"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Role        string    `gorm:"column:role;not null"`
	Active      bool      `gorm:"column:active;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (memberModel) TableName() string { return "members" }

func (m memberModel) toDomain() domain.Member {
	return domain.Member{
		TenantID:    m.TenantID,
		UserID:      m.UserID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		Role:        domain.Role(m.Role),
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

type projectModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	TenantID    string    `gorm:"column:tenant_id;not null"`
	Name        string    `gorm:"column:name;not null"`
	Description string    `gorm:"column:description;not null"`
	Archived    bool      `gorm:"column:archived;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (projectModel) TableName() string    { return "projects" }
func (m *projectModel) rowTenant() string { return m.TenantID }

func (m projectModel) toDomain() domain.Project {
	return domain.Project{
		TenantID:    m.TenantID,
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Archived:    m.Archived,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

type projectMemberModel struct {
	TenantID  string    `gorm:"column:tenant_id;primaryKey"`
	ProjectID string    `gorm:"column:project_id;primaryKey"`
	UserID    string    `gorm:"column:user_id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (projectMemberModel) TableName() string { return "project_members" }

func (m projectMemberModel) toDomain() domain.ProjectMember {
	return domain.ProjectMember{TenantID: m.TenantID, ProjectID: m.ProjectID, UserID: m.UserID, CreatedAt: m.CreatedAt}
}

type taskModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	TenantID   string    `gorm:"column:tenant_id;not null"`
	ProjectID  string    `gorm:"column:project_id;not null"`
	Title      string    `gorm:"column:title;not null"`
	Status     string    `gorm:"column:status;not null"`
	AssigneeID string    `gorm:"column:assignee_id;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (taskModel) TableName() string    { return "tasks" }
func (m *taskModel) rowTenant() string { return m.TenantID }

func (m taskModel) toDomain() domain.Task {
	return domain.Task{
		TenantID:   m.TenantID,
		ID:         m.ID,
		ProjectID:  m.ProjectID,
		Title:      m.Title,
		Status:     domain.TaskStatus(m.Status),
		AssigneeID: m.AssigneeID,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

type documentModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	TenantID    string    `gorm:"column:tenant_id;not null"`
	UploadedBy  string    `gorm:"column:uploaded_by;not null"`
	Name        string    `gorm:"column:name;not null"`
	ContentType string    `gorm:"column:content_type;not null"`
	SizeBytes   int64     `gorm:"column:size_bytes;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (documentModel) TableName() string    { return "documents" }
func (m *documentModel) rowTenant() string { return m.TenantID }

func (m documentModel) toDomain() domain.Document {
	return domain.Document{
		TenantID:    m.TenantID,
		ID:          m.ID,
		UploadedBy:  m.UploadedBy,
		Name:        m.Name,
		ContentType: m.ContentType,
		SizeBytes:   m.SizeBytes,
		CreatedAt:   m.CreatedAt,
	}
}

type externalLinkModel struct {
	TenantID   string    `gorm:"column:tenant_id;primaryKey"`
	UserID     string    `gorm:"column:user_id;primaryKey"`
	Provider   string    `gorm:"column:provider;primaryKey"`
	ExternalID string    `gorm:"column:external_id;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

func (externalLinkModel) TableName() string { return "external_links" }

func (m externalLinkModel) toDomain() domain.ExternalLink {
	return domain.ExternalLink{
		TenantID:   m.TenantID,
		UserID:     m.UserID,
		Provider:   m.Provider,
		ExternalID: m.ExternalID,
		CreatedAt:  m.CreatedAt,
	}
}

type pendingRevocationModel struct {
	Provider   string    `gorm:"column:provider;primaryKey"`
	ExternalID string    `gorm:"column:external_id;primaryKey"`
	TenantID   string    `gorm:"column:tenant_id;not null"`
	UserID     string    `gorm:"column:user_id;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

func (pendingRevocationModel) TableName() string { return "pending_revocations" }

func (m pendingRevocationModel) toDomain() domain.ExternalLink {
	return domain.ExternalLink{
		TenantID:   m.TenantID,
		UserID:     m.UserID,
		Provider:   m.Provider,
		ExternalID: m.ExternalID,
		CreatedAt:  m.CreatedAt,
	}
}

type activityModel struct {
	ID          string            `gorm:"column:id;primaryKey"`
	TenantID    string            `gorm:"column:tenant_id;not null"`
	ProjectID   string            `gorm:"column:project_id;not null"`
	ActorUserID string            `gorm:"column:actor_user_id;not null"`
	Action      string            `gorm:"column:action;not null"`
	EntityType  string            `gorm:"column:entity_type;not null"`
	EntityID    string            `gorm:"column:entity_id;not null"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata;not null"`
	CreatedAt   time.Time         `gorm:"column:created_at;not null"`
}

func (activityModel) TableName() string { return "activity_records" }

func (m activityModel) toDomain() domain.ActivityRecord {
	meta := map[string]any(m.Metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	return domain.ActivityRecord{
		ID:          m.ID,
		TenantID:    m.TenantID,
		ProjectID:   m.ProjectID,
		ActorUserID: m.ActorUserID,
		Action:      domain.Action(m.Action),
		EntityType:  domain.EntityType(m.EntityType),
		EntityID:    m.EntityID,
		Metadata:    meta,
		CreatedAt:   m.CreatedAt,
	}
}

type sessionModel struct {
	TokenHash string    `gorm:"column:token_hash;primaryKey"`
	TenantID  string    `gorm:"column:tenant_id;not null"`
	UserID    string    `gorm:"column:user_id;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	Revoked   bool      `gorm:"column:revoked;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (sessionModel) TableName() string { return "sessions" }

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	TenantID      string     `gorm:"column:tenant_id;not null"`
	Channel       string     `gorm:"column:channel;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string { return "outbox_events" }
