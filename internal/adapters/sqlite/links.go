package sqlite

import (
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LinkAccount binds a member to an external identity, replacing any earlier
// identity for the same provider. An external identity can be linked once
// across all tenants.
func (t *scopedTx) LinkAccount(l domain.ExternalLink) (domain.ExternalLink, error) {
	tenantID, err := t.stamp(l.TenantID)
	if err != nil {
		return domain.ExternalLink{}, err
	}
	if err := l.Validate(); err != nil {
		return domain.ExternalLink{}, err
	}
	if _, err := t.loadMember(l.UserID); err != nil {
		return domain.ExternalLink{}, err
	}

	var taken int64
	err = t.tx.Model(&externalLinkModel{}).
		Where("provider = ? AND external_id = ?", l.Provider, l.ExternalID).
		Where("NOT (tenant_id = ? AND user_id = ?)", tenantID, l.UserID).
		Count(&taken).Error
	if err != nil {
		return domain.ExternalLink{}, fmt.Errorf("check external identity: %w", err)
	}
	if taken > 0 {
		return domain.ExternalLink{}, domain.NewError(domain.CodeValidationFailed, "external identity already linked")
	}

	var previous externalLinkModel
	err = t.scoped(&previous).Where("user_id = ? AND provider = ?", l.UserID, l.Provider).Take(&previous).Error
	switch {
	case err == nil:
		if previous.ExternalID != l.ExternalID {
			if err := t.markRevocation(previous); err != nil {
				return domain.ExternalLink{}, err
			}
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ExternalLink{}, fmt.Errorf("load external link: %w", err)
	}

	// The identity is linked again, so an outstanding revocation of it would
	// take away the grant this link is about to receive.
	err = t.tx.Where("provider = ? AND external_id = ?", l.Provider, l.ExternalID).
		Delete(&pendingRevocationModel{}).Error
	if err != nil {
		return domain.ExternalLink{}, fmt.Errorf("clear pending revocation: %w", err)
	}

	row := externalLinkModel{
		TenantID:   tenantID,
		UserID:     l.UserID,
		Provider:   l.Provider,
		ExternalID: l.ExternalID,
		CreatedAt:  t.now(),
	}
	err = t.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"external_id", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		return domain.ExternalLink{}, fmt.Errorf("link account: %w", err)
	}
	return row.toDomain(), nil
}

func (t *scopedTx) UnlinkAccount(userID, provider string) (domain.ExternalLink, error) {
	var row externalLinkModel
	err := t.scoped(&row).Where("user_id = ? AND provider = ?", userID, provider).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ExternalLink{}, domain.NewError(domain.CodeNotFound, "external link not found")
	}
	if err != nil {
		return domain.ExternalLink{}, fmt.Errorf("load external link: %w", err)
	}
	err = t.scoped(&externalLinkModel{}).
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&externalLinkModel{}).Error
	if err != nil {
		return domain.ExternalLink{}, fmt.Errorf("unlink account: %w", err)
	}
	if err := t.markRevocation(row); err != nil {
		return domain.ExternalLink{}, err
	}
	return row.toDomain(), nil
}

// markRevocation remembers that the external grant of a dropped link must be
// revoked. It commits with the unlink and stays until a revoke succeeds.
func (t *scopedTx) markRevocation(link externalLinkModel) error {
	row := pendingRevocationModel{
		Provider:   link.Provider,
		ExternalID: link.ExternalID,
		TenantID:   t.tenantID,
		UserID:     link.UserID,
		CreatedAt:  t.now(),
	}
	err := t.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "user_id", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("record pending revocation: %w", err)
	}
	return nil
}

func (t *scopedTx) ListPendingRevocations() ([]domain.ExternalLink, error) {
	var rows []pendingRevocationModel
	err := t.scoped(&pendingRevocationModel{}).Order("provider ASC, external_id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pending revocations: %w", err)
	}
	out := make([]domain.ExternalLink, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// ClearPendingRevocation drops a revocation once the external system confirmed it.
func (t *scopedTx) ClearPendingRevocation(provider, externalID string) error {
	err := t.scoped(&pendingRevocationModel{}).
		Where("provider = ? AND external_id = ?", provider, externalID).
		Delete(&pendingRevocationModel{}).Error
	if err != nil {
		return fmt.Errorf("clear pending revocation: %w", err)
	}
	return nil
}

// ListLinks returns the links of one member, or of the whole tenant when userID is empty.
func (t *scopedTx) ListLinks(userID string) ([]domain.ExternalLink, error) {
	q := t.scoped(&externalLinkModel{})
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var rows []externalLinkModel
	if err := q.Order("user_id ASC, provider ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list external links: %w", err)
	}
	out := make([]domain.ExternalLink, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
