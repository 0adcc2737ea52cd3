package sqlite

import (
	"fmt"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

func (t *scopedTx) AppendActivity(rec domain.ActivityRecord) (domain.ActivityRecord, error) {
	tenantID, err := t.stamp(rec.TenantID)
	if err != nil {
		return domain.ActivityRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.now()
	}
	meta := datatypes.JSONMap(rec.Metadata)
	if meta == nil {
		meta = datatypes.JSONMap{}
	}

	row := activityModel{
		ID:          rec.ID,
		TenantID:    tenantID,
		ProjectID:   rec.ProjectID,
		ActorUserID: rec.ActorUserID,
		Action:      string(rec.Action),
		EntityType:  string(rec.EntityType),
		EntityID:    rec.EntityID,
		Metadata:    meta,
		CreatedAt:   rec.CreatedAt.UTC(),
	}
	if err := t.tx.Create(&row).Error; err != nil {
		return domain.ActivityRecord{}, fmt.Errorf("append activity: %w", err)
	}
	return row.toDomain(), nil
}

// ListActivity returns the newest records first.
func (t *scopedTx) ListActivity(filter domain.ActivityFilter) ([]domain.ActivityRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	q := t.scoped(&activityModel{})
	if filter.ProjectID != "" {
		q = q.Where("project_id = ?", filter.ProjectID)
	}
	if filter.EntityType != "" {
		q = q.Where("entity_type = ?", string(filter.EntityType))
	}
	if filter.EntityID != "" {
		q = q.Where("entity_id = ?", filter.EntityID)
	}
	if !filter.Before.IsZero() {
		q = q.Where("created_at < ?", filter.Before.UTC())
	}

	var rows []activityModel
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	out := make([]domain.ActivityRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
