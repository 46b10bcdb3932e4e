package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OnboardingRepository persists the per-company wizard state.
type OnboardingRepository interface {
	Create(ctx context.Context, onboarding *model.Onboarding) error
	GetByCompany(ctx context.Context, companyID uuid.UUID) (*model.Onboarding, error)
	Save(ctx context.Context, onboarding *model.Onboarding) error
}

type onboardingRepository struct {
	db *gorm.DB
}

func NewOnboardingRepository(db *gorm.DB) OnboardingRepository {
	return &onboardingRepository{db: db}
}

func (r *onboardingRepository) Create(ctx context.Context, onboarding *model.Onboarding) error {
	return GetDB(ctx, r.db).Create(onboarding).Error
}

func (r *onboardingRepository) GetByCompany(ctx context.Context, companyID uuid.UUID) (*model.Onboarding, error) {
	var onboarding model.Onboarding
	if err := GetDB(ctx, r.db).First(&onboarding, "company_id = ?", companyID).Error; err != nil {
		return nil, err
	}
	return &onboarding, nil
}

func (r *onboardingRepository) Save(ctx context.Context, onboarding *model.Onboarding) error {
	return GetDB(ctx, r.db).Save(onboarding).Error
}
