package domain

import "time"

type Action string

const (
	ActionCreated       Action = "created"
	ActionUpdated       Action = "updated"
	ActionDeleted       Action = "deleted"
	ActionLinked        Action = "linked"
	ActionUnlinked      Action = "unlinked"
	ActionRoleChanged   Action = "role_changed"
	ActionDeactivated   Action = "deactivated"
	ActionMemberAdded   Action = "member_added"
	ActionMemberRemoved Action = "member_removed"
)

type EntityType string

const (
	EntityProject       EntityType = "project"
	EntityTask          EntityType = "task"
	EntityMember        EntityType = "member"
	EntityProjectMember EntityType = "project_member"
	EntityDocument      EntityType = "document"
	EntityExternalLink  EntityType = "external_link"
)

// ActivityRecord is an append-only audit row describing one mutation.
type ActivityRecord struct {
	ID          string
	TenantID    string
	ProjectID   string
	ActorUserID string
	Action      Action
	EntityType  EntityType
	EntityID    string
	Metadata    map[string]any
	CreatedAt   time.Time
}

type ActivityFilter struct {
	ProjectID  string
	EntityType EntityType
	EntityID   string
	Before     time.Time
	Limit      int
}
