package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/zerotocryptodev/gateway/internal/models"
	"github.com/zerotocryptodev/gateway/internal/storage"
)

type FeatureFlagRepository struct {
	db *storage.Postgres
}

func NewFeatureFlagRepository(db *storage.Postgres) *FeatureFlagRepository {
	return &FeatureFlagRepository{db: db}
}

func (r *FeatureFlagRepository) Create(ctx context.Context, flag *models.FeatureFlag) error {
	return r.db.DB.WithContext(ctx).Create(flag).Error
}

// Writes every column of an existing flag
func (r *FeatureFlagRepository) Save(ctx context.Context, flag *models.FeatureFlag) error {
	return r.db.DB.WithContext(ctx).Save(flag).Error
}

func (r *FeatureFlagRepository) FindByID(ctx context.Context, id string) (*models.FeatureFlag, error) {
	var flag models.FeatureFlag
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&flag).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &flag, err
}

// All flags, oldest first
func (r *FeatureFlagRepository) List(ctx context.Context) ([]models.FeatureFlag, error) {
	var flags []models.FeatureFlag
	err := r.db.DB.WithContext(ctx).
		Order("created_at ASC").
		Find(&flags).Error

	return flags, err
}

// Returns the number of deleted rows
func (r *FeatureFlagRepository) Delete(ctx context.Context, id string) (int64, error) {
	res := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.FeatureFlag{})

	return res.RowsAffected, res.Error
}
