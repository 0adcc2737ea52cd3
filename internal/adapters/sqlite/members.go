package sqlite

import (
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
	"gorm.io/gorm"
)

func (t *scopedTx) loadMember(userID string) (memberModel, error) {
	var row memberModel
	err := t.scoped(&row).Where("user_id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, domain.NewError(domain.CodeNotFound, "member not found")
	}
	if err != nil {
		return row, fmt.Errorf("load member: %w", err)
	}
	return row, nil
}

func (t *scopedTx) GetMember(userID string) (domain.Member, error) {
	row, err := t.loadMember(userID)
	if err != nil {
		return domain.Member{}, err
	}
	return row.toDomain(), nil
}

func (t *scopedTx) ListMembers(activeOnly bool) ([]domain.Member, error) {
	var rows []memberModel
	q := t.scoped(&memberModel{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Order("user_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	out := make([]domain.Member, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (t *scopedTx) CreateMember(m domain.Member) (domain.Member, error) {
	tenantID, err := t.stamp(m.TenantID)
	if err != nil {
		return domain.Member{}, err
	}
	if err := domain.ValidateID(m.UserID); err != nil {
		return domain.Member{}, err
	}
	role, err := domain.ParseRole(string(m.Role))
	if err != nil {
		return domain.Member{}, err
	}
	if _, err := t.loadMember(m.UserID); err == nil {
		return domain.Member{}, domain.NewError(domain.CodeValidationFailed, "member already exists")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Member{}, err
	}

	now := t.now()
	row := memberModel{
		TenantID:    tenantID,
		UserID:      m.UserID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		Role:        string(role),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.tx.Create(&row).Error; err != nil {
		return domain.Member{}, fmt.Errorf("create member: %w", err)
	}
	return row.toDomain(), nil
}

func (t *scopedTx) SetMemberRole(userID string, role domain.Role) (domain.Role, error) {
	role, err := domain.ParseRole(string(role))
	if err != nil {
		return "", err
	}
	row, err := t.loadMember(userID)
	if err != nil {
		return "", err
	}
	previous := domain.Role(row.Role)
	err = t.scoped(&memberModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"role": string(role), "updated_at": t.now()}).Error
	if err != nil {
		return "", fmt.Errorf("update member role: %w", err)
	}
	return previous, nil
}

func (t *scopedTx) DeactivateMember(userID string) error {
	if _, err := t.loadMember(userID); err != nil {
		return err
	}
	err := t.scoped(&memberModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"active": false, "updated_at": t.now()}).Error
	if err != nil {
		return fmt.Errorf("deactivate member: %w", err)
	}
	return nil
}
