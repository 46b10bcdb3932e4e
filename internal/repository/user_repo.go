package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines the interface for data access of User entities
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Save(user).Error
}

// VerificationCodeRepository persists signup OTP codes, one row per email.
type VerificationCodeRepository interface {
	Replace(ctx context.Context, code *model.VerificationCode) error
	GetByEmail(ctx context.Context, email string) (*model.VerificationCode, error)
	DeleteByEmail(ctx context.Context, email string) error
}

type verificationCodeRepository struct {
	db *gorm.DB
}

func NewVerificationCodeRepository(db *gorm.DB) VerificationCodeRepository {
	return &verificationCodeRepository{db: db}
}

// Replace upserts the code row for the email: a re-send invalidates any
// prior code.
func (r *verificationCodeRepository) Replace(ctx context.Context, code *model.VerificationCode) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"code_hash", "expires_at", "created_at"}),
	}).Create(code).Error
}

func (r *verificationCodeRepository) GetByEmail(ctx context.Context, email string) (*model.VerificationCode, error) {
	var code model.VerificationCode
	if err := GetDB(ctx, r.db).First(&code, "email = ?", email).Error; err != nil {
		return nil, err
	}
	if time.Now().UTC().After(code.ExpiresAt) {
		return nil, gorm.ErrRecordNotFound
	}
	return &code, nil
}

func (r *verificationCodeRepository) DeleteByEmail(ctx context.Context, email string) error {
	return GetDB(ctx, r.db).Where("email = ?", email).Delete(&model.VerificationCode{}).Error
}
