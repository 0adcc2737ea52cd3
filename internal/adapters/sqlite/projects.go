package sqlite

import (
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (t *scopedTx) GetProject(id string) (domain.Project, error) {
	row, err := getScoped[projectModel](t, id, "project")
	if err != nil {
		return domain.Project{}, err
	}
	return row.toDomain(), nil
}

func (t *scopedTx) ListProjects() ([]domain.Project, error) {
	var rows []projectModel
	if err := t.scoped(&projectModel{}).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]domain.Project, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (t *scopedTx) CreateProject(p domain.Project) (domain.Project, error) {
	tenantID, err := t.stamp(p.TenantID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := p.Validate(); err != nil {
		return domain.Project{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if err := domain.ValidateID(p.ID); err != nil {
		return domain.Project{}, err
	} else if err := claimID[projectModel](t, p.ID, "project"); err != nil {
		return domain.Project{}, err
	}

	now := t.now()
	row := projectModel{
		ID:          p.ID,
		TenantID:    tenantID,
		Name:        p.Name,
		Description: p.Description,
		Archived:    p.Archived,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.tx.Create(&row).Error; err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	return row.toDomain(), nil
}

func (t *scopedTx) UpdateProject(p domain.Project) (domain.Project, error) {
	if err := p.Validate(); err != nil {
		return domain.Project{}, err
	}
	if _, err := t.stamp(p.TenantID); err != nil {
		return domain.Project{}, err
	}
	row, err := loadForWrite[projectModel](t, p.ID, "project")
	if err != nil {
		return domain.Project{}, err
	}
	row.Name = p.Name
	row.Description = p.Description
	row.Archived = p.Archived
	row.UpdatedAt = t.now()
	err = t.scoped(&projectModel{}).Where("id = ?", row.ID).Updates(map[string]any{
		"name":        row.Name,
		"description": row.Description,
		"archived":    row.Archived,
		"updated_at":  row.UpdatedAt,
	}).Error
	if err != nil {
		return domain.Project{}, fmt.Errorf("update project: %w", err)
	}
	return row.toDomain(), nil
}

func (t *scopedTx) DeleteProject(id string) (domain.Project, error) {
	row, err := loadForWrite[projectModel](t, id, "project")
	if err != nil {
		return domain.Project{}, err
	}
	if err := t.scoped(&projectModel{}).Where("id = ?", id).Delete(&projectModel{}).Error; err != nil {
		return domain.Project{}, fmt.Errorf("delete project: %w", err)
	}
	return row.toDomain(), nil
}

func (t *scopedTx) AddProjectMember(projectID, userID string) (domain.ProjectMember, error) {
	if _, err := loadForWrite[projectModel](t, projectID, "project"); err != nil {
		return domain.ProjectMember{}, err
	}
	member, err := t.loadMember(userID)
	if err != nil {
		return domain.ProjectMember{}, err
	}
	if !member.Active {
		return domain.ProjectMember{}, domain.NewError(domain.CodeValidationFailed, "member is deactivated")
	}

	row := projectMemberModel{TenantID: t.tenantID, ProjectID: projectID, UserID: userID, CreatedAt: t.now()}
	err = t.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return domain.ProjectMember{}, fmt.Errorf("add project member: %w", err)
	}
	return row.toDomain(), nil
}

func (t *scopedTx) RemoveProjectMember(projectID, userID string) error {
	if _, err := loadForWrite[projectModel](t, projectID, "project"); err != nil {
		return err
	}
	res := t.scoped(&projectMemberModel{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&projectMemberModel{})
	if res.Error != nil {
		return fmt.Errorf("remove project member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NewError(domain.CodeNotFound, "project member not found")
	}
	return nil
}

func (t *scopedTx) IsProjectMember(projectID, userID string) (bool, error) {
	var row projectMemberModel
	err := t.scoped(&row).Where("project_id = ? AND user_id = ?", projectID, userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check project member: %w", err)
	}
	return true, nil
}

func (t *scopedTx) ListProjectMembers(projectID string) ([]domain.ProjectMember, error) {
	if _, err := getScoped[projectModel](t, projectID, "project"); err != nil {
		return nil, err
	}
	var rows []projectMemberModel
	err := t.scoped(&projectMemberModel{}).Where("project_id = ?", projectID).Order("user_id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	out := make([]domain.ProjectMember, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
