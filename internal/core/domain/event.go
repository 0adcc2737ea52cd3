package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAccountLinked        EventType = "account:linked"
	EventAccountUnlinked      EventType = "account:unlinked"
	EventAccountDeactivated   EventType = "account:deactivated"
	EventRoleChanged          EventType = "role:changed"
	EventProjectCreated       EventType = "project:created"
	EventProjectUpdated       EventType = "project:updated"
	EventProjectDeleted       EventType = "project:deleted"
	EventProjectMemberAdded   EventType = "project:member_added"
	EventProjectMemberRemoved EventType = "project:member_removed"
	EventTaskCreated          EventType = "task:created"
	EventTaskUpdated          EventType = "task:updated"
	EventTaskDeleted          EventType = "task:deleted"
	EventPresenceOnline       EventType = "presence:online"
	EventPresenceOffline      EventType = "presence:offline"
)

// Namespace is the part of the type before the colon.
func (t EventType) Namespace() string {
	ns, _, ok := strings.Cut(string(t), ":")
	if !ok {
		return ""
	}
	return ns
}

const (
	channelPrefix = "tenantsync.events."

	// BroadcastChannel mirrors gateway-originated room broadcasts across gateway instances.
	BroadcastChannel = "tenantsync.gateway.broadcast"
)

// ChannelFor returns the bus channel an event type is published on.
func ChannelFor(t EventType) string {
	return channelPrefix + t.Namespace()
}

// DomainChannels lists every channel domain events are published on.
func DomainChannels() []string {
	return []string{
		channelPrefix + "account",
		channelPrefix + "role",
		channelPrefix + "project",
		channelPrefix + "task",
	}
}

// DomainEvent is the transient message carried by the bus and broadcast to rooms.
type DomainEvent struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	TenantID   string          `json:"tenantId"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Durability selects how a publisher reacts to a broker outage.
type Durability int

const (
	// BestEffort logs and drops on broker failure. Use for live-refresh UX.
	BestEffort Durability = iota
	// MustDeliverOrRetry retries and surfaces failure. Use for security-relevant effects.
	MustDeliverOrRetry
)

func (d Durability) String() string {
	if d == MustDeliverOrRetry {
		return "must_deliver_or_retry"
	}
	return "best_effort"
}

// NewEvent builds an event whose tenant is taken from the acting context.
func NewEvent(actor ActorContext, t EventType, payload any, now time.Time) (DomainEvent, error) {
	if actor.TenantID == "" {
		return DomainEvent{}, ErrTenantIDRequired
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return DomainEvent{}, WrapError(CodeValidationFailed, "encode event payload", err)
	}
	return DomainEvent{
		ID:         uuid.NewString(),
		Type:       t,
		TenantID:   actor.TenantID,
		Payload:    raw,
		OccurredAt: now.UTC(),
	}, nil
}

// EventFromActivity builds an event from the activity record of the mutation it describes.
func EventFromActivity(rec ActivityRecord, t EventType, payload any) (DomainEvent, error) {
	return NewEvent(ActorContext{UserID: rec.ActorUserID, TenantID: rec.TenantID}, t, payload, rec.CreatedAt)
}

type AccountPayload struct {
	UserID     string `json:"userId"`
	Provider   string `json:"provider"`
	ExternalID string `json:"externalId"`
}

type DeactivatedPayload struct {
	UserID string `json:"userId"`
}

type RoleChangedPayload struct {
	UserID       string `json:"userId"`
	PreviousRole Role   `json:"previousRole"`
	Role         Role   `json:"role"`
}

type ProjectPayload struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name,omitempty"`
}

type ProjectMemberPayload struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
}

type TaskPayload struct {
	TaskID    string     `json:"taskId"`
	ProjectID string     `json:"projectId"`
	Title     string     `json:"title,omitempty"`
	Status    TaskStatus `json:"status,omitempty"`
}

type PresencePayload struct {
	UserID string `json:"userId"`
}

// subject is the routing-relevant part shared by all payloads.
type subject struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
}

func (e DomainEvent) subject() subject {
	var s subject
	_ = json.Unmarshal(e.Payload, &s)
	return s
}

// RoomKey names a broadcast room: tenant:<id>, user:<id> or project:<id>.
type RoomKey string

func TenantRoom(id string) RoomKey  { return RoomKey("tenant:" + id) }
func UserRoom(id string) RoomKey    { return RoomKey("user:" + id) }
func ProjectRoom(id string) RoomKey { return RoomKey("project:" + id) }

// RoutesFor returns the rooms an event is broadcast to. Room keys are always
// resolved inside the event's own tenant by the gateway registry.
func RoutesFor(e DomainEvent) []RoomKey {
	s := e.subject()
	var rooms []RoomKey
	addUser := func() {
		if s.UserID != "" {
			rooms = append(rooms, UserRoom(s.UserID))
		}
	}
	addProject := func() {
		if s.ProjectID != "" {
			rooms = append(rooms, ProjectRoom(s.ProjectID))
		}
	}

	switch e.Type {
	case EventAccountLinked, EventAccountUnlinked, EventAccountDeactivated, EventRoleChanged:
		addUser()
	case EventProjectMemberAdded, EventProjectMemberRemoved:
		addProject()
		addUser()
	case EventProjectCreated, EventProjectDeleted, EventPresenceOnline, EventPresenceOffline:
		rooms = append(rooms, TenantRoom(e.TenantID))
	case EventProjectUpdated, EventTaskCreated, EventTaskUpdated, EventTaskDeleted:
		addProject()
	}
	return rooms
}

// OutboxEvent is a must-deliver event parked after inline retries failed.
type OutboxEvent struct {
	ID            int64
	EventID       string
	TenantID      string
	Channel       string
	PayloadJSON   json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}
