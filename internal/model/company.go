package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company is the tenant. One owner user, many members through CompanyUser.
type Company struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(255);not null" json:"name"`
	Phone            string         `gorm:"type:varchar(30)" json:"phone"`
	StripeCustomerID *string        `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// Membership statuses
const (
	MembershipActive   = "active"
	MembershipPending  = "pending"
	MembershipDisabled = "disabled"
)

// CompanyUser links a user to a company with a role and permission snapshot.
type CompanyUser struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_company_users_pair" json:"company_id"`
	Company     Company   `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE;" json:"-"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_company_users_pair" json:"user_id"`
	User        User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Role        string    `gorm:"type:varchar(50);not null" json:"role"`
	Permissions []string  `gorm:"type:text[];serializer:json" json:"permissions"`
	IsOwner     bool      `gorm:"not null;default:false" json:"is_owner"`
	Status      string    `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Store is a branch of a company. Exactly one is_main once onboarding
// completes.
type Store struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id"`
	Company   Company   `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE;" json:"-"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	IsMain    bool      `gorm:"not null;default:false" json:"is_main"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// StorePlugin enables a plugin for a single store.
type StorePlugin struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	StoreID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_store_plugins_pair" json:"store_id"`
	Store     Store     `gorm:"foreignKey:StoreID;constraint:OnDelete:CASCADE;" json:"-"`
	PluginID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_store_plugins_pair" json:"plugin_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CompanyPlugin records a plugin purchased at company level during
// onboarding, regardless of which stores it is enabled for.
type CompanyPlugin struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_company_plugins_pair" json:"company_id"`
	PluginID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_company_plugins_pair" json:"plugin_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Invitation statuses
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRevoked  = "revoked"
)

// Invitation is a pending membership offer, delivered by email with an
// opaque token.
type Invitation struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id"`
	Company   Company   `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE;" json:"-"`
	Email     string    `gorm:"type:varchar(255);not null;index" json:"email"`
	Role      string    `gorm:"type:varchar(50);not null" json:"role"`
	TokenHash string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	Status    string    `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
