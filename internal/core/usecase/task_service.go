package usecase

import (
	"context"
	"log/slog"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

// TaskService mutates tasks. Any member with project access may work on tasks.
type TaskService struct {
	m mutator
}

func NewTaskService(scopes ports.ScopeOpener, audit *AuditRecorder, publisher ports.EventPublisher, log *slog.Logger) *TaskService {
	return &TaskService{m: newMutator(scopes, audit, publisher, log)}
}

func requireProjectAccess(tx ports.ScopedTx, actor domain.ActorContext, projectID string) error {
	ok, err := projectAccess(tx, actor.UserID, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewError(domain.CodeNotFound, "project not found")
	}
	return nil
}

func (s *TaskService) List(ctx context.Context, actor domain.ActorContext, projectID string) ([]domain.Task, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return nil, err
	}
	var out []domain.Task
	err = scope.Read(ctx, func(tx ports.ScopedTx) error {
		if err := requireProjectAccess(tx, actor, projectID); err != nil {
			return err
		}
		out, err = tx.ListTasks(projectID)
		return err
	})
	return out, err
}

func (s *TaskService) Create(ctx context.Context, actor domain.ActorContext, task domain.Task) (domain.Task, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return domain.Task{}, err
	}
	var created domain.Task
	var rec domain.ActivityRecord
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		if err := requireProjectAccess(tx, actor, task.ProjectID); err != nil {
			return err
		}
		created, err = tx.CreateTask(task)
		if err != nil {
			return err
		}
		rec, err = s.m.audit.Record(ctx, tx, domain.ActionCreated, domain.EntityTask, created.ID,
			map[string]any{"projectId": created.ProjectID, "title": created.Title})
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return created, s.m.emit(ctx, rec, domain.EventTaskCreated, taskPayload(created), domain.BestEffort)
}

func (s *TaskService) Update(ctx context.Context, actor domain.ActorContext, taskID string, patch domain.TaskPatch) (domain.Task, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return domain.Task{}, err
	}
	var updated domain.Task
	var rec domain.ActivityRecord
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		current, err := tx.GetTask(taskID)
		if err == nil {
			if err := requireProjectAccess(tx, actor, current.ProjectID); err != nil {
				return err
			}
		}
		updated, err = tx.UpdateTask(taskID, patch)
		if err != nil {
			return err
		}
		rec, err = s.m.audit.Record(ctx, tx, domain.ActionUpdated, domain.EntityTask, updated.ID,
			map[string]any{"projectId": updated.ProjectID, "changed": patchFields(patch)})
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	return updated, s.m.emit(ctx, rec, domain.EventTaskUpdated, taskPayload(updated), domain.BestEffort)
}

func (s *TaskService) Delete(ctx context.Context, actor domain.ActorContext, taskID string) error {
	scope, err := s.m.open(actor)
	if err != nil {
		return err
	}
	var deleted domain.Task
	var rec domain.ActivityRecord
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		current, err := tx.GetTask(taskID)
		if err == nil {
			if err := requireProjectAccess(tx, actor, current.ProjectID); err != nil {
				return err
			}
		}
		deleted, err = tx.DeleteTask(taskID)
		if err != nil {
			return err
		}
		rec, err = s.m.audit.Record(ctx, tx, domain.ActionDeleted, domain.EntityTask, deleted.ID,
			map[string]any{"projectId": deleted.ProjectID})
		return err
	})
	if err != nil {
		return err
	}
	return s.m.emit(ctx, rec, domain.EventTaskDeleted, taskPayload(deleted), domain.BestEffort)
}

func taskPayload(t domain.Task) domain.TaskPayload {
	return domain.TaskPayload{TaskID: t.ID, ProjectID: t.ProjectID, Title: t.Title, Status: t.Status}
}

func patchFields(p domain.TaskPatch) []string {
	var fields []string
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	if p.AssigneeID != nil {
		fields = append(fields, "assigneeId")
	}
	return fields
}
