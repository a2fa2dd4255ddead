package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/therapy_shop/internal/models"
)

var ErrRefreshUnusable = errors.New("refresh token expired or revoked")

func (r *GormRepo) AddRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *GormRepo) FindRefreshByJTI(ctx context.Context, jti string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("jti = ?", jti).First(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

func refreshUsable(db *gorm.DB, jti, tokenHash string, now time.Time) error {
	var refresh models.RefreshToken
	if err := db.Where("jti = ?", jti).First(&refresh).Error; err != nil {
		return err
	}
	if refresh.Revoked || refresh.TokenHash != tokenHash || refresh.ExpiresAt.Before(now) {
		return ErrRefreshUnusable
	}
	return nil
}

func markAsUsed(db *gorm.DB, jti string) error {
	return db.Model(&models.RefreshToken{}).
		Where("jti = ?", jti).
		Update("revoked", true).Error
}

func (r *GormRepo) RotateRefreshToken(ctx context.Context, oldJTI, oldHash string, newToken *models.RefreshToken, now time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := refreshUsable(tx, oldJTI, oldHash, now); err != nil {
			return err
		}

		if err := markAsUsed(tx, oldJTI); err != nil {
			return err
		}

		return tx.Create(newToken).Error
	})
}

func (r *GormRepo) RevokeRefresh(ctx context.Context, tokenHash string) error {
	return r.DB.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token_hash = ?", tokenHash).
		Update("revoked", true).Error
}

func (r *GormRepo) RevokeAllRefresh(ctx context.Context, userID uuid.UUID) error {
	return r.DB.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
}
