package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Billing periods
const (
	BillingMonthly = "monthly"
	BillingYearly  = "yearly"
)

// Billing statuses. The sync request path only ever writes
// BillingIncomplete placeholders; every later transition belongs to the
// Stripe webhook.
const (
	BillingIncomplete = "incomplete"
	BillingActive     = "active"
	BillingPastDue    = "past_due"
	BillingCanceled   = "canceled"
)

// Subscription item kinds, one per Stripe subscription line.
const (
	ItemPlanBase   = "plan_base"
	ItemExtraStore = "extra_store"
	ItemPlugin     = "plugin"
)

// Subscription is the single active billing row per company.
type Subscription struct {
	ID                   uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID            uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"company_id"`
	Company              Company    `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE;" json:"-"`
	PlanID               uuid.UUID  `gorm:"type:uuid;not null" json:"plan_id"`
	StripeSubscriptionID *string    `gorm:"type:varchar(255);uniqueIndex" json:"stripe_subscription_id"`
	BillingPeriod        string     `gorm:"type:varchar(10);not null" json:"billing_period"`
	BillingStatus        string     `gorm:"type:varchar(20);not null;default:'incomplete'" json:"billing_status"`
	CurrentPeriodStart   *time.Time `json:"current_period_start"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd    bool       `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CanceledAt           *time.Time `json:"canceled_at"`
	WelcomeEmailSent     bool       `gorm:"not null;default:false" json:"-"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SubscriptionItem mirrors one Stripe subscription line for audit.
type SubscriptionItem struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SubscriptionID uuid.UUID       `gorm:"type:uuid;not null;index" json:"subscription_id"`
	Subscription   Subscription    `gorm:"foreignKey:SubscriptionID;constraint:OnDelete:CASCADE;" json:"-"`
	Kind           string          `gorm:"type:varchar(20);not null" json:"kind"`
	RefID          *uuid.UUID      `gorm:"type:uuid" json:"ref_id"` // plugin id for ItemPlugin
	StripeItemID   *string         `gorm:"type:varchar(255)" json:"stripe_item_id"`
	StripePriceID  *string         `gorm:"type:varchar(255)" json:"stripe_price_id"`
	Quantity       int             `gorm:"not null;default:1" json:"quantity"`
	UnitAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"unit_amount"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// Payment outcomes
const (
	PaymentPaid   = "paid"
	PaymentFailed = "failed"
)

// PaymentHistory is an append-mostly ledger of invoice outcomes, upserted
// by Stripe invoice id so webhook redelivery is safe.
type PaymentHistory struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"company_id"`
	StripeInvoiceID string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"stripe_invoice_id"`
	Status          string          `gorm:"type:varchar(20);not null" json:"status"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"amount"`
	Currency        string          `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	BillingReason   string          `gorm:"type:varchar(50)" json:"billing_reason"`
	PaidAt          *time.Time      `json:"paid_at"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
