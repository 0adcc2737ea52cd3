package sqlite

import (
	"fmt"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/google/uuid"
)

func (t *scopedTx) GetTask(id string) (domain.Task, error) {
	row, err := getScoped[taskModel](t, id, "task")
	if err != nil {
		return domain.Task{}, err
	}
	return row.toDomain(), nil
}

func (t *scopedTx) ListTasks(projectID string) ([]domain.Task, error) {
	if _, err := getScoped[projectModel](t, projectID, "project"); err != nil {
		return nil, err
	}
	var rows []taskModel
	err := t.scoped(&taskModel{}).Where("project_id = ?", projectID).Order("created_at ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (t *scopedTx) CreateTask(task domain.Task) (domain.Task, error) {
	tenantID, err := t.stamp(task.TenantID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := task.Validate(); err != nil {
		return domain.Task{}, err
	}
	if _, err := loadForWrite[projectModel](t, task.ProjectID, "project"); err != nil {
		return domain.Task{}, err
	}
	if task.AssigneeID != "" {
		if _, err := t.loadMember(task.AssigneeID); err != nil {
			return domain.Task{}, err
		}
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	} else if err := claimID[taskModel](t, task.ID, "task"); err != nil {
		return domain.Task{}, err
	}
	if task.Status == "" {
		task.Status = domain.TaskTodo
	}

	now := t.now()
	row := taskModel{
		ID:         task.ID,
		TenantID:   tenantID,
		ProjectID:  task.ProjectID,
		Title:      task.Title,
		Status:     string(task.Status),
		AssigneeID: task.AssigneeID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := t.tx.Create(&row).Error; err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	return row.toDomain(), nil
}

func (t *scopedTx) UpdateTask(id string, patch domain.TaskPatch) (domain.Task, error) {
	row, err := loadForWrite[taskModel](t, id, "task")
	if err != nil {
		return domain.Task{}, err
	}
	if patch.Title != nil {
		row.Title = *patch.Title
	}
	if patch.Status != nil {
		row.Status = string(*patch.Status)
	}
	if patch.AssigneeID != nil {
		if *patch.AssigneeID != "" {
			if _, err := t.loadMember(*patch.AssigneeID); err != nil {
				return domain.Task{}, err
			}
		}
		row.AssigneeID = *patch.AssigneeID
	}
	if err := row.toDomain().Validate(); err != nil {
		return domain.Task{}, err
	}
	row.UpdatedAt = t.now()
	err = t.scoped(&taskModel{}).Where("id = ?", id).Updates(map[string]any{
		"title":       row.Title,
		"status":      row.Status,
		"assignee_id": row.AssigneeID,
		"updated_at":  row.UpdatedAt,
	}).Error
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	return row.toDomain(), nil
}

func (t *scopedTx) DeleteTask(id string) (domain.Task, error) {
	row, err := loadForWrite[taskModel](t, id, "task")
	if err != nil {
		return domain.Task{}, err
	}
	if err := t.scoped(&taskModel{}).Where("id = ?", id).Delete(&taskModel{}).Error; err != nil {
		return domain.Task{}, fmt.Errorf("delete task: %w", err)
	}
	return row.toDomain(), nil
}
