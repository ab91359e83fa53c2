package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeatureFlag is the source-of-truth record for a gated feature.
type FeatureFlag struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Key               string    `gorm:"uniqueIndex;not null" json:"key"`
	Name              string    `gorm:"not null" json:"name"`
	Description       string    `json:"description,omitempty"`
	Enabled           bool      `gorm:"not null" json:"enabled"`
	RolloutPercentage int       `gorm:"not null" json:"rollout_percentage"` // 0..100
	UserIDs           []string  `gorm:"type:jsonb;serializer:json" json:"user_ids"`
	CreatedAt         time.Time `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (f *FeatureFlag) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.UserIDs == nil {
		f.UserIDs = []string{}
	}
	return nil
}

func (FeatureFlag) TableName() string {
	return "feature_flags"
}

// HasOverride reports whether userID is on the flag's override list.
func (f FeatureFlag) HasOverride(userID string) bool {
	if userID == "" {
		return false
	}
	return slices.Contains(f.UserIDs, userID)
}
