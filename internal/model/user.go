package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the identity anchor. Created at signup, never re-keyed.
type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email        string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"type:varchar(255);not null" json:"-"`
	Verified     bool           `gorm:"not null;default:false" json:"verified"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// VerificationCode holds a pending signup OTP. Only the SHA-256 hash of the
// code is stored; re-sending replaces the row for the email.
type VerificationCode struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	CodeHash  string    `gorm:"type:varchar(64);not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Session is one row per (user, device fingerprint). The refresh token is
// stored only as a SHA-256 hash; rotation swaps the hash in place.
type Session struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index:idx_sessions_user_fp" json:"user_id"`
	User           User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Fingerprint    string    `gorm:"type:varchar(128);not null;index:idx_sessions_user_fp" json:"fingerprint"`
	TokenHash      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	Revoked        bool      `gorm:"not null;default:false" json:"revoked"`
	ExpiresAt      time.Time `gorm:"not null" json:"expires_at"`
	LastActivityAt time.Time `gorm:"not null" json:"last_activity_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
