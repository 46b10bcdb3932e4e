package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StoreRepository covers stores (branches) and their plugin links.
type StoreRepository interface {
	Create(ctx context.Context, store *model.Store) error
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]model.Store, error)
	GetMain(ctx context.Context, companyID uuid.UUID) (*model.Store, error)
	LinkPlugin(ctx context.Context, link *model.StorePlugin) error
	ListPluginsForStore(ctx context.Context, storeID uuid.UUID) ([]model.StorePlugin, error)
	CreateCompanyPlugin(ctx context.Context, link *model.CompanyPlugin) error
}

type storeRepository struct {
	db *gorm.DB
}

func NewStoreRepository(db *gorm.DB) StoreRepository {
	return &storeRepository{db: db}
}

func (r *storeRepository) Create(ctx context.Context, store *model.Store) error {
	return GetDB(ctx, r.db).Create(store).Error
}

func (r *storeRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]model.Store, error) {
	var stores []model.Store
	err := GetDB(ctx, r.db).
		Where("company_id = ?", companyID).
		Order("created_at ASC").
		Find(&stores).Error
	if err != nil {
		return nil, err
	}
	return stores, nil
}

func (r *storeRepository) GetMain(ctx context.Context, companyID uuid.UUID) (*model.Store, error) {
	var store model.Store
	err := GetDB(ctx, r.db).
		First(&store, "company_id = ? AND is_main = true", companyID).Error
	if err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *storeRepository) LinkPlugin(ctx context.Context, link *model.StorePlugin) error {
	return GetDB(ctx, r.db).Create(link).Error
}

func (r *storeRepository) ListPluginsForStore(ctx context.Context, storeID uuid.UUID) ([]model.StorePlugin, error) {
	var links []model.StorePlugin
	if err := GetDB(ctx, r.db).Where("store_id = ?", storeID).Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *storeRepository) CreateCompanyPlugin(ctx context.Context, link *model.CompanyPlugin) error {
	return GetDB(ctx, r.db).Create(link).Error
}
