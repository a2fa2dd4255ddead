package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/Skotchmaster/therapy_shop/internal/models"
)

func (r *GormRepo) CreateResetToken(ctx context.Context, t *models.PasswordResetToken) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *GormRepo) FindResetToken(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	var t models.PasswordResetToken
	if err := r.DB.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteResetToken reports whether this call removed the row, so two
// concurrent resets with one token cannot both succeed.
func (r *GormRepo) DeleteResetToken(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.PasswordResetToken{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) CountResetTokens(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&models.PasswordResetToken{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}
