package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CatalogRepository reads and updates the cached plan/plugin catalog. The
// amount columns are the price cache the preview path depends on; only the
// Stripe price webhooks write them.
type CatalogRepository interface {
	ListPlans(ctx context.Context) ([]model.Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*model.Plan, error)
	ListPlugins(ctx context.Context) ([]model.Plugin, error)
	GetPluginsByKeys(ctx context.Context, keys []string) ([]model.Plugin, error)

	FindPlanByStripePrice(ctx context.Context, priceID string) (*model.Plan, string, error)
	FindPluginByStripePrice(ctx context.Context, priceID string) (*model.Plugin, string, error)
	UpdatePlanAmount(ctx context.Context, planID uuid.UUID, column string, amount decimal.Decimal) error
	UpdatePluginAmount(ctx context.Context, pluginID uuid.UUID, column string, amount decimal.Decimal) error
}

// Price cache columns addressable by the webhook sync. Each maps one Stripe
// price id field to the amount column it refreshes.
const (
	PlanColMonthly      = "monthly_amount"
	PlanColYearly       = "yearly_amount"
	PlanColExtraMonthly = "extra_store_monthly"
	PlanColExtraYearly  = "extra_store_yearly"
	PluginColMonthly    = "monthly_amount"
	PluginColYearly     = "yearly_amount"
)

type catalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) ListPlans(ctx context.Context) ([]model.Plan, error) {
	var plans []model.Plan
	if err := GetDB(ctx, r.db).Order("tier ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *catalogRepository) GetPlan(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	var plan model.Plan
	if err := GetDB(ctx, r.db).First(&plan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *catalogRepository) ListPlugins(ctx context.Context) ([]model.Plugin, error) {
	var plugins []model.Plugin
	if err := GetDB(ctx, r.db).Order("key ASC").Find(&plugins).Error; err != nil {
		return nil, err
	}
	return plugins, nil
}

func (r *catalogRepository) GetPluginsByKeys(ctx context.Context, keys []string) ([]model.Plugin, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var plugins []model.Plugin
	if err := GetDB(ctx, r.db).Where("key IN ?", keys).Find(&plugins).Error; err != nil {
		return nil, err
	}
	return plugins, nil
}

// FindPlanByStripePrice matches a Stripe price id against the four plan
// price fields and reports which amount column it refreshes.
func (r *catalogRepository) FindPlanByStripePrice(ctx context.Context, priceID string) (*model.Plan, string, error) {
	var plan model.Plan
	err := GetDB(ctx, r.db).
		Where("stripe_monthly_price = ? OR stripe_yearly_price = ? OR stripe_extra_monthly = ? OR stripe_extra_yearly = ?",
			priceID, priceID, priceID, priceID).
		First(&plan).Error
	if err != nil {
		return nil, "", err
	}

	switch {
	case plan.StripeMonthlyPrice != nil && *plan.StripeMonthlyPrice == priceID:
		return &plan, PlanColMonthly, nil
	case plan.StripeYearlyPrice != nil && *plan.StripeYearlyPrice == priceID:
		return &plan, PlanColYearly, nil
	case plan.StripeExtraMonthly != nil && *plan.StripeExtraMonthly == priceID:
		return &plan, PlanColExtraMonthly, nil
	default:
		return &plan, PlanColExtraYearly, nil
	}
}

func (r *catalogRepository) FindPluginByStripePrice(ctx context.Context, priceID string) (*model.Plugin, string, error) {
	var plugin model.Plugin
	err := GetDB(ctx, r.db).
		Where("stripe_monthly_price = ? OR stripe_yearly_price = ?", priceID, priceID).
		First(&plugin).Error
	if err != nil {
		return nil, "", err
	}
	if plugin.StripeMonthlyPrice != nil && *plugin.StripeMonthlyPrice == priceID {
		return &plugin, PluginColMonthly, nil
	}
	return &plugin, PluginColYearly, nil
}

func (r *catalogRepository) UpdatePlanAmount(ctx context.Context, planID uuid.UUID, column string, amount decimal.Decimal) error {
	return GetDB(ctx, r.db).Model(&model.Plan{}).
		Where("id = ?", planID).
		Updates(map[string]interface{}{
			column:                amount,
			"prices_refreshed_at": time.Now().UTC(),
		}).Error
}

func (r *catalogRepository) UpdatePluginAmount(ctx context.Context, pluginID uuid.UUID, column string, amount decimal.Decimal) error {
	return GetDB(ctx, r.db).Model(&model.Plugin{}).
		Where("id = ?", pluginID).
		Updates(map[string]interface{}{
			column:                amount,
			"prices_refreshed_at": time.Now().UTC(),
		}).Error
}
