package domain

import (
	"strings"
	"time"
)

type Project struct {
	TenantID    string
	ID          string
	Name        string
	Description string
	Archived    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewError(CodeValidationFailed, "project name is required")
	}
	return nil
}

type ProjectMember struct {
	TenantID  string
	ProjectID string
	UserID    string
	CreatedAt time.Time
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
)

type Task struct {
	TenantID   string
	ID         string
	ProjectID  string
	Title      string
	Status     TaskStatus
	AssigneeID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return NewError(CodeValidationFailed, "task title is required")
	}
	switch t.Status {
	case "", TaskTodo, TaskInProgress, TaskDone:
	default:
		return NewError(CodeValidationFailed, "unknown task status")
	}
	return ValidateID(t.ProjectID)
}

// TaskPatch carries optional task changes. Nil fields are left untouched.
type TaskPatch struct {
	Title      *string
	Status     *TaskStatus
	AssigneeID *string
}

// Document lives in a member's personal partition.
type Document struct {
	TenantID    string
	ID          string
	UploadedBy  string
	Name        string
	ContentType string
	SizeBytes   int64
	CreatedAt   time.Time
}

// ExternalLink binds a member to an identity in a third-party system the bot manages.
type ExternalLink struct {
	TenantID   string
	UserID     string
	Provider   string
	ExternalID string
	CreatedAt  time.Time
}

func (l ExternalLink) Validate() error {
	if err := ValidateID(l.Provider); err != nil {
		return err
	}
	return ValidateID(l.ExternalID)
}
