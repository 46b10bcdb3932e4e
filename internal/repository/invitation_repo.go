package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvitationRepository persists pending membership offers.
type InvitationRepository interface {
	Create(ctx context.Context, invitation *model.Invitation) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*model.Invitation, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID, page, limit int) ([]model.Invitation, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type invitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

func (r *invitationRepository) Create(ctx context.Context, invitation *model.Invitation) error {
	return GetDB(ctx, r.db).Create(invitation).Error
}

func (r *invitationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*model.Invitation, error) {
	var invitation model.Invitation
	if err := GetDB(ctx, r.db).First(&invitation, "token_hash = ?", tokenHash).Error; err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *invitationRepository) ListByCompany(ctx context.Context, companyID uuid.UUID, page, limit int) ([]model.Invitation, int64, error) {
	db := GetDB(ctx, r.db)

	var total int64
	if err := db.Model(&model.Invitation{}).Where("company_id = ?", companyID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invitations []model.Invitation
	offset := (page - 1) * limit
	err := db.Where("company_id = ?", companyID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&invitations).Error
	if err != nil {
		return nil, 0, err
	}
	return invitations, total, nil
}

func (r *invitationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.Invitation{}).
		Where("id = ?", id).
		Update("status", status).Error
}
