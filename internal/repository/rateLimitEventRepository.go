package repository

import (
	"context"

	"github.com/zerotocryptodev/gateway/internal/models"
	"github.com/zerotocryptodev/gateway/internal/storage"
)

type RateLimitEventRepository struct {
	db *storage.Postgres
}

func NewRateLimitEventRepository(db *storage.Postgres) *RateLimitEventRepository {
	return &RateLimitEventRepository{db: db}
}

// Inserts multiple events in one statement
func (r *RateLimitEventRepository) CreateBatch(ctx context.Context, events []models.RateLimitEvent) error {
	if len(events) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&events).Error
}

// Most recent rejections first
func (r *RateLimitEventRepository) FindRecent(ctx context.Context, policy string, limit int) ([]models.RateLimitEvent, error) {
	var events []models.RateLimitEvent

	query := r.db.DB.WithContext(ctx).Order("timestamp DESC").Limit(limit)
	if policy != "" {
		query = query.Where("policy = ?", policy)
	}

	err := query.Find(&events).Error
	return events, err
}
