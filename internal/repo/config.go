package repo

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/therapy_shop/internal/models"
)

func (r *GormRepo) GetAdminConfig(ctx context.Context) (*models.AdminConfig, error) {
	var cfg models.AdminConfig
	if err := r.DB.WithContext(ctx).Where("id = ?", models.AdminConfigID).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveAdminConfig writes the singleton row in place, creating it on first save.
func (r *GormRepo) SaveAdminConfig(ctx context.Context, cfg *models.AdminConfig) error {
	cfg.ID = models.AdminConfigID
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(cfg).Error
}
