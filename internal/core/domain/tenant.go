package domain

import (
	"regexp"
	"strings"
	"time"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// ValidateID checks an opaque identifier (tenant, user, project, entity).
func ValidateID(id string) error {
	if id == "" || len(id) > 128 || !idPattern.MatchString(id) {
		return NewError(CodeValidationFailed, "invalid id")
	}
	return nil
}

type Tenant struct {
	ID        string
	Name      string
	Active    bool
	CreatedAt time.Time
}

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleWorker  Role = "WORKER"
)

func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleManager, RoleWorker:
		return r, nil
	default:
		return "", NewError(CodeValidationFailed, "unknown role")
	}
}

// Member is a user account inside one tenant.
type Member struct {
	TenantID    string
	UserID      string
	Email       string
	DisplayName string
	Role        Role
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ActorContext identifies who performs an operation. It is never persisted.
type ActorContext struct {
	UserID    string
	TenantID  string
	ProjectID string
}

func (a ActorContext) Validate() error {
	if a.TenantID == "" {
		return ErrTenantIDRequired
	}
	if err := ValidateID(a.TenantID); err != nil {
		return err
	}
	return ValidateID(a.UserID)
}

// Identity is the verified principal behind a request or gateway connection.
type Identity struct {
	UserID   string
	TenantID string
	Role     Role
}

func (i Identity) Actor() ActorContext {
	return ActorContext{UserID: i.UserID, TenantID: i.TenantID}
}
