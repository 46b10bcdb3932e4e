package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionUpdate carries the billing-status fields only the webhook is
// allowed to write.
type SubscriptionUpdate struct {
	BillingStatus      string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  *bool
	CanceledAt         *time.Time
}

// BillingRepository covers subscriptions, their line items and the payment
// ledger. Webhook-driven writes are upserts keyed by Stripe ids.
type BillingRepository interface {
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscriptionByCompany(ctx context.Context, companyID uuid.UUID) (*model.Subscription, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeSubID string) (*model.Subscription, error)
	UpdateBillingStatus(ctx context.Context, stripeSubID string, update SubscriptionUpdate) error
	MarkWelcomeEmailSent(ctx context.Context, stripeSubID string) (bool, error)

	ReplaceItems(ctx context.Context, subscriptionID uuid.UUID, items []model.SubscriptionItem) error
	ListItems(ctx context.Context, subscriptionID uuid.UUID) ([]model.SubscriptionItem, error)

	UpsertPayment(ctx context.Context, payment *model.PaymentHistory) error
	ListPayments(ctx context.Context, companyID uuid.UUID, page, limit int) ([]model.PaymentHistory, int64, error)
}

type billingRepository struct {
	db *gorm.DB
}

func NewBillingRepository(db *gorm.DB) BillingRepository {
	return &billingRepository{db: db}
}

func (r *billingRepository) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	return GetDB(ctx, r.db).Create(sub).Error
}

func (r *billingRepository) GetSubscriptionByCompany(ctx context.Context, companyID uuid.UUID) (*model.Subscription, error) {
	var sub model.Subscription
	if err := GetDB(ctx, r.db).First(&sub, "company_id = ?", companyID).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *billingRepository) GetSubscriptionByStripeID(ctx context.Context, stripeSubID string) (*model.Subscription, error) {
	var sub model.Subscription
	if err := GetDB(ctx, r.db).First(&sub, "stripe_subscription_id = ?", stripeSubID).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateBillingStatus applies webhook-owned fields. The sync request path
// never calls this; it only creates incomplete placeholders.
func (r *billingRepository) UpdateBillingStatus(ctx context.Context, stripeSubID string, update SubscriptionUpdate) error {
	values := map[string]interface{}{}
	if update.BillingStatus != "" {
		values["billing_status"] = update.BillingStatus
	}
	if update.CurrentPeriodStart != nil {
		values["current_period_start"] = update.CurrentPeriodStart
	}
	if update.CurrentPeriodEnd != nil {
		values["current_period_end"] = update.CurrentPeriodEnd
	}
	if update.CancelAtPeriodEnd != nil {
		values["cancel_at_period_end"] = *update.CancelAtPeriodEnd
	}
	if update.CanceledAt != nil {
		values["canceled_at"] = update.CanceledAt
	}
	if len(values) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&model.Subscription{}).
		Where("stripe_subscription_id = ?", stripeSubID).
		Updates(values).Error
}

// MarkWelcomeEmailSent flips the idempotency marker; returns false when the
// marker was already set so a webhook replay skips the email.
func (r *billingRepository) MarkWelcomeEmailSent(ctx context.Context, stripeSubID string) (bool, error) {
	result := GetDB(ctx, r.db).Model(&model.Subscription{}).
		Where("stripe_subscription_id = ? AND welcome_email_sent = false", stripeSubID).
		Update("welcome_email_sent", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *billingRepository) ReplaceItems(ctx context.Context, subscriptionID uuid.UUID, items []model.SubscriptionItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("subscription_id = ?", subscriptionID).Delete(&model.SubscriptionItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.Create(&items).Error
}

func (r *billingRepository) ListItems(ctx context.Context, subscriptionID uuid.UUID) ([]model.SubscriptionItem, error) {
	var items []model.SubscriptionItem
	if err := GetDB(ctx, r.db).Where("subscription_id = ?", subscriptionID).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpsertPayment is keyed by stripe_invoice_id so Stripe's redelivery
// guarantee cannot duplicate ledger rows.
func (r *billingRepository) UpsertPayment(ctx context.Context, payment *model.PaymentHistory) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_invoice_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "amount", "currency", "billing_reason", "paid_at", "updated_at"}),
	}).Create(payment).Error
}

func (r *billingRepository) ListPayments(ctx context.Context, companyID uuid.UUID, page, limit int) ([]model.PaymentHistory, int64, error) {
	db := GetDB(ctx, r.db)

	var total int64
	if err := db.Model(&model.PaymentHistory{}).Where("company_id = ?", companyID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []model.PaymentHistory
	offset := (page - 1) * limit
	err := db.Where("company_id = ?", companyID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}
