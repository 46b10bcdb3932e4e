package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRepository persists per-device sessions. The invariant is exactly
// one non-revoked row per (user, fingerprint); Upsert enforces it.
type SessionRepository interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*model.Session, error)
	Upsert(ctx context.Context, session *model.Session) error
	RotateToken(ctx context.Context, sessionID uuid.UUID, oldHash, newHash string, expiresAt time.Time) (bool, error)
	Revoke(ctx context.Context, sessionID uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
	TouchActivity(ctx context.Context, userID uuid.UUID, fingerprint string) error
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	var session model.Session
	if err := GetDB(ctx, r.db).First(&session, "token_hash = ?", tokenHash).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// GetByFingerprint returns the most recent session for a device,
// regardless of revocation, so the caller can distinguish "revoked" from
// "never seen".
func (r *sessionRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*model.Session, error) {
	var session model.Session
	err := GetDB(ctx, r.db).
		Where("fingerprint = ?", fingerprint).
		Order("updated_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Upsert rotates the existing row for (user, fingerprint) in place, or
// creates a new one for a first-seen device. Any stale duplicates for the
// same fingerprint are revoked so the invariant holds.
func (r *sessionRepository) Upsert(ctx context.Context, session *model.Session) error {
	db := GetDB(ctx, r.db)

	var existing model.Session
	err := db.Where("user_id = ? AND fingerprint = ?", session.UserID, session.Fingerprint).
		Order("updated_at DESC").
		First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return db.Create(session).Error
		}
		return err
	}

	// Revoke duplicates beyond the row being updated in place.
	if err := db.Model(&model.Session{}).
		Where("user_id = ? AND fingerprint = ? AND id <> ? AND revoked = false",
			session.UserID, session.Fingerprint, existing.ID).
		Update("revoked", true).Error; err != nil {
		return err
	}

	existing.TokenHash = session.TokenHash
	existing.ExpiresAt = session.ExpiresAt
	existing.Revoked = false
	existing.LastActivityAt = session.LastActivityAt
	if err := db.Save(&existing).Error; err != nil {
		return err
	}
	*session = existing
	return nil
}

// RotateToken swaps the token hash with a conditional update so a lost
// double-refresh race surfaces as rotated=false instead of silently
// overwriting the winner's token.
func (r *sessionRepository) RotateToken(ctx context.Context, sessionID uuid.UUID, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	result := GetDB(ctx, r.db).Model(&model.Session{}).
		Where("id = ? AND token_hash = ? AND revoked = false", sessionID, oldHash).
		Updates(map[string]interface{}{
			"token_hash": newHash,
			"expires_at": expiresAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *sessionRepository) Revoke(ctx context.Context, sessionID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.Session{}).
		Where("id = ?", sessionID).
		Update("revoked", true).Error
}

func (r *sessionRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.Session{}).
		Where("user_id = ? AND revoked = false", userID).
		Update("revoked", true).Error
}

func (r *sessionRepository) TouchActivity(ctx context.Context, userID uuid.UUID, fingerprint string) error {
	return GetDB(ctx, r.db).Model(&model.Session{}).
		Where("user_id = ? AND fingerprint = ? AND revoked = false", userID, fingerprint).
		Update("last_activity_at", time.Now().UTC()).Error
}
