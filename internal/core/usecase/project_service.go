package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/atvirokodosprendimai/tenantsync/internal/core/ports"
)

type ProjectService struct {
	m mutator
}

func NewProjectService(scopes ports.ScopeOpener, audit *AuditRecorder, publisher ports.EventPublisher, log *slog.Logger) *ProjectService {
	return &ProjectService{m: newMutator(scopes, audit, publisher, log)}
}

// List returns the projects the actor can see.
func (s *ProjectService) List(ctx context.Context, actor domain.ActorContext) ([]domain.Project, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return nil, err
	}
	var out []domain.Project
	err = scope.Read(ctx, func(tx ports.ScopedTx) error {
		projects, err := tx.ListProjects()
		if err != nil {
			return err
		}
		for _, p := range projects {
			ok, err := projectAccess(tx, actor.UserID, p.ID)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// Get hides projects the actor cannot access behind NOT_FOUND.
func (s *ProjectService) Get(ctx context.Context, actor domain.ActorContext, projectID string) (domain.Project, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return domain.Project{}, err
	}
	var out domain.Project
	err = scope.Read(ctx, func(tx ports.ScopedTx) error {
		ok, err := projectAccess(tx, actor.UserID, projectID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewError(domain.CodeNotFound, "project not found")
		}
		out, err = tx.GetProject(projectID)
		return err
	})
	return out, err
}

func (s *ProjectService) Create(ctx context.Context, actor domain.ActorContext, p domain.Project) (domain.Project, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return domain.Project{}, err
	}
	var created domain.Project
	var rec domain.ActivityRecord
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		if _, err := RequireRole(tx, domain.RoleAdmin, domain.RoleManager); err != nil {
			return err
		}
		created, err = tx.CreateProject(p)
		if err != nil {
			return err
		}
		rec, err = s.m.audit.Record(ctx, tx, domain.ActionCreated, domain.EntityProject, created.ID,
			map[string]any{"projectId": created.ID, "name": created.Name})
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return created, s.m.emit(ctx, rec, domain.EventProjectCreated,
		domain.ProjectPayload{ProjectID: created.ID, Name: created.Name}, domain.BestEffort)
}

func (s *ProjectService) Update(ctx context.Context, actor domain.ActorContext, p domain.Project) (domain.Project, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return domain.Project{}, err
	}
	var updated domain.Project
	var rec domain.ActivityRecord
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		if err := s.requireManagerAccess(tx, actor, p.ID); err != nil {
			return err
		}
		// A foreign id reads as missing here; UpdateProject reports it properly.
		before, err := tx.GetProject(p.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		updated, err = tx.UpdateProject(p)
		if err != nil {
			return err
		}
		rec, err = s.m.audit.Record(ctx, tx, domain.ActionUpdated, domain.EntityProject, updated.ID, map[string]any{
			"projectId": updated.ID,
			"before":    map[string]any{"name": before.Name, "description": before.Description, "archived": before.Archived},
			"after":     map[string]any{"name": updated.Name, "description": updated.Description, "archived": updated.Archived},
		})
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return updated, s.m.emit(ctx, rec, domain.EventProjectUpdated,
		domain.ProjectPayload{ProjectID: updated.ID, Name: updated.Name}, domain.BestEffort)
}

func (s *ProjectService) Delete(ctx context.Context, actor domain.ActorContext, projectID string) error {
	scope, err := s.m.open(actor)
	if err != nil {
		return err
	}
	var rec domain.ActivityRecord
	var deleted domain.Project
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		if err := s.requireManagerAccess(tx, actor, projectID); err != nil {
			return err
		}
		deleted, err = tx.DeleteProject(projectID)
		if err != nil {
			return err
		}
		rec, err = s.m.audit.Record(ctx, tx, domain.ActionDeleted, domain.EntityProject, projectID,
			map[string]any{"projectId": projectID, "name": deleted.Name})
		return err
	})
	if err != nil {
		return err
	}
	return s.m.emit(ctx, rec, domain.EventProjectDeleted,
		domain.ProjectPayload{ProjectID: projectID, Name: deleted.Name}, domain.BestEffort)
}

func (s *ProjectService) AddMember(ctx context.Context, actor domain.ActorContext, projectID, userID string) (domain.ProjectMember, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return domain.ProjectMember{}, err
	}
	var added domain.ProjectMember
	var rec domain.ActivityRecord
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		if err := s.requireManagerAccess(tx, actor, projectID); err != nil {
			return err
		}
		added, err = tx.AddProjectMember(projectID, userID)
		if err != nil {
			return err
		}
		rec, err = s.m.audit.Record(ctx, tx, domain.ActionMemberAdded, domain.EntityProjectMember, userID,
			map[string]any{"projectId": projectID, "userId": userID})
		return err
	})
	if err != nil {
		return domain.ProjectMember{}, err
	}
	return added, s.m.emit(ctx, rec, domain.EventProjectMemberAdded,
		domain.ProjectMemberPayload{ProjectID: projectID, UserID: userID}, domain.BestEffort)
}

// RemoveMember revokes access, so its event must be delivered.
func (s *ProjectService) RemoveMember(ctx context.Context, actor domain.ActorContext, projectID, userID string) error {
	scope, err := s.m.open(actor)
	if err != nil {
		return err
	}
	var rec domain.ActivityRecord
	err = scope.Write(ctx, func(tx ports.ScopedTx) error {
		if err := s.requireManagerAccess(tx, actor, projectID); err != nil {
			return err
		}
		if err := tx.RemoveProjectMember(projectID, userID); err != nil {
			return err
		}
		rec, err = s.m.audit.Record(ctx, tx, domain.ActionMemberRemoved, domain.EntityProjectMember, userID,
			map[string]any{"projectId": projectID, "userId": userID})
		return err
	})
	if err != nil {
		return err
	}
	return s.m.emit(ctx, rec, domain.EventProjectMemberRemoved,
		domain.ProjectMemberPayload{ProjectID: projectID, UserID: userID}, domain.MustDeliverOrRetry)
}

func (s *ProjectService) Members(ctx context.Context, actor domain.ActorContext, projectID string) ([]domain.ProjectMember, error) {
	scope, err := s.m.open(actor)
	if err != nil {
		return nil, err
	}
	var out []domain.ProjectMember
	err = scope.Read(ctx, func(tx ports.ScopedTx) error {
		ok, err := projectAccess(tx, actor.UserID, projectID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewError(domain.CodeNotFound, "project not found")
		}
		out, err = tx.ListProjectMembers(projectID)
		return err
	})
	return out, err
}

// requireManagerAccess lets admins through and requires managers to be
// members of the project.
func (s *ProjectService) requireManagerAccess(tx ports.ScopedTx, actor domain.ActorContext, projectID string) error {
	member, err := RequireRole(tx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return err
	}
	if member.Role == domain.RoleAdmin {
		return nil
	}
	ok, err := tx.IsProjectMember(projectID, actor.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewError(domain.CodeAccessDenied, "not a member of this project")
	}
	return nil
}
