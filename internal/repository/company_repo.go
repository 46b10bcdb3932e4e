package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CompanyRepository covers companies and memberships.
type CompanyRepository interface {
	Create(ctx context.Context, company *model.Company) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Company, error)
	SetStripeCustomer(ctx context.Context, id uuid.UUID, stripeCustomerID string) error
	Update(ctx context.Context, company *model.Company) error

	CreateMembership(ctx context.Context, membership *model.CompanyUser) error
	GetMembership(ctx context.Context, companyID, userID uuid.UUID) (*model.CompanyUser, error)
	GetOwner(ctx context.Context, companyID uuid.UUID) (*model.CompanyUser, error)
	ListMembershipsForUser(ctx context.Context, userID uuid.UUID) ([]model.CompanyUser, error)
	ListMembers(ctx context.Context, companyID uuid.UUID, page, limit int) ([]model.CompanyUser, int64, error)
}

type companyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) CompanyRepository {
	return &companyRepository{db: db}
}

func (r *companyRepository) Create(ctx context.Context, company *model.Company) error {
	return GetDB(ctx, r.db).Create(company).Error
}

func (r *companyRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Company, error) {
	var company model.Company
	if err := GetDB(ctx, r.db).First(&company, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *companyRepository) SetStripeCustomer(ctx context.Context, id uuid.UUID, stripeCustomerID string) error {
	return GetDB(ctx, r.db).Model(&model.Company{}).
		Where("id = ?", id).
		Update("stripe_customer_id", stripeCustomerID).Error
}

func (r *companyRepository) Update(ctx context.Context, company *model.Company) error {
	return GetDB(ctx, r.db).Save(company).Error
}

func (r *companyRepository) CreateMembership(ctx context.Context, membership *model.CompanyUser) error {
	return GetDB(ctx, r.db).Create(membership).Error
}

func (r *companyRepository) GetMembership(ctx context.Context, companyID, userID uuid.UUID) (*model.CompanyUser, error) {
	var membership model.CompanyUser
	err := GetDB(ctx, r.db).
		First(&membership, "company_id = ? AND user_id = ?", companyID, userID).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *companyRepository) GetOwner(ctx context.Context, companyID uuid.UUID) (*model.CompanyUser, error) {
	var membership model.CompanyUser
	err := GetDB(ctx, r.db).
		First(&membership, "company_id = ? AND is_owner = true", companyID).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *companyRepository) ListMembershipsForUser(ctx context.Context, userID uuid.UUID) ([]model.CompanyUser, error) {
	var memberships []model.CompanyUser
	err := GetDB(ctx, r.db).
		Where("user_id = ? AND status = ?", userID, model.MembershipActive).
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}

func (r *companyRepository) ListMembers(ctx context.Context, companyID uuid.UUID, page, limit int) ([]model.CompanyUser, int64, error) {
	db := GetDB(ctx, r.db)

	var total int64
	if err := db.Model(&model.CompanyUser{}).Where("company_id = ?", companyID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var members []model.CompanyUser
	offset := (page - 1) * limit
	if err := db.Where("company_id = ?", companyID).Offset(offset).Limit(limit).Find(&members).Error; err != nil {
		return nil, 0, err
	}
	return members, total, nil
}
