package sqlite

import (
	"fmt"
	"strings"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"github.com/google/uuid"
)

// personalTx adds the uploaded_by predicate on top of the tenant one.
type personalTx struct {
	*scopedTx
	ownerID string
}

func (t *personalTx) OwnerID() string { return t.ownerID }

func (t *personalTx) ListDocuments() ([]domain.Document, error) {
	var rows []documentModel
	err := t.scoped(&documentModel{}).
		Where("uploaded_by = ?", t.ownerID).
		Order("created_at DESC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]domain.Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (t *personalTx) CreateDocument(d domain.Document) (domain.Document, error) {
	tenantID, err := t.stamp(d.TenantID)
	if err != nil {
		return domain.Document{}, err
	}
	if d.UploadedBy != "" && d.UploadedBy != t.ownerID {
		return domain.Document{}, domain.NewError(domain.CodeAccessDenied, "document owner differs from scope owner")
	}
	if strings.TrimSpace(d.Name) == "" {
		return domain.Document{}, domain.NewError(domain.CodeValidationFailed, "document name is required")
	}
	if d.SizeBytes < 0 {
		return domain.Document{}, domain.NewError(domain.CodeValidationFailed, "document size must not be negative")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	} else if err := claimID[documentModel](t.scopedTx, d.ID, "document"); err != nil {
		return domain.Document{}, err
	}

	row := documentModel{
		ID:          d.ID,
		TenantID:    tenantID,
		UploadedBy:  t.ownerID,
		Name:        d.Name,
		ContentType: d.ContentType,
		SizeBytes:   d.SizeBytes,
		CreatedAt:   t.now(),
	}
	if err := t.tx.Create(&row).Error; err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	return row.toDomain(), nil
}

func (t *personalTx) DeleteDocument(id string) (domain.Document, error) {
	row, err := loadForWrite[documentModel](t.scopedTx, id, "document")
	if err != nil {
		return domain.Document{}, err
	}
	if row.UploadedBy != t.ownerID {
		return domain.Document{}, domain.NewError(domain.CodeAccessDenied, "document belongs to another member")
	}
	err = t.scoped(&documentModel{}).
		Where("id = ? AND uploaded_by = ?", id, t.ownerID).
		Delete(&documentModel{}).Error
	if err != nil {
		return domain.Document{}, fmt.Errorf("delete document: %w", err)
	}
	return row.toDomain(), nil
}
