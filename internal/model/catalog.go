package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is a catalog row with cached Stripe price snapshots. Amounts are
// refreshed by price webhooks, never read live from Stripe on the request
// path.
type Plan struct {
	ID                  uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Key                 string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"key"`
	Name                string          `gorm:"type:varchar(100);not null" json:"name"`
	Tier                int             `gorm:"not null;default:0" json:"tier"`
	Currency            string          `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	MonthlyAmount       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"monthly_amount"`
	YearlyAmount        decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"yearly_amount"`
	ExtraStoreMonthly   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"extra_store_monthly"`
	ExtraStoreYearly    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"extra_store_yearly"`
	StripeMonthlyPrice  *string         `gorm:"type:varchar(255);index" json:"-"`
	StripeYearlyPrice   *string         `gorm:"type:varchar(255);index" json:"-"`
	StripeExtraMonthly  *string         `gorm:"type:varchar(255);index" json:"-"`
	StripeExtraYearly   *string         `gorm:"type:varchar(255);index" json:"-"`
	PricesRefreshedAt   *time.Time      `json:"prices_refreshed_at"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Free reports whether the plan has a zero base price in both periods.
func (p Plan) Free() bool {
	return p.MonthlyAmount.IsZero() && p.YearlyAmount.IsZero()
}

// Plugin is an optional paid add-on, gated by plan tier and industries.
type Plugin struct {
	ID                 uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Key                string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"key"`
	Name               string          `gorm:"type:varchar(100);not null" json:"name"`
	MinTier            int             `gorm:"not null;default:0" json:"min_tier"`
	Industries         []string        `gorm:"type:text[];serializer:json" json:"industries"`
	Currency           string          `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	MonthlyAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"monthly_amount"`
	YearlyAmount       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"yearly_amount"`
	StripeMonthlyPrice *string         `gorm:"type:varchar(255);index" json:"-"`
	StripeYearlyPrice  *string         `gorm:"type:varchar(255);index" json:"-"`
	PricesRefreshedAt  *time.Time      `json:"prices_refreshed_at"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// AllowedFor reports whether the plugin can be sold for the given plan tier
// and industry selection. An empty industry list on the plugin means it is
// not industry-restricted.
func (p Plugin) AllowedFor(tier int, industries []string) bool {
	if tier < p.MinTier {
		return false
	}
	if len(p.Industries) == 0 {
		return true
	}
	for _, want := range p.Industries {
		for _, have := range industries {
			if want == have {
				return true
			}
		}
	}
	return false
}
