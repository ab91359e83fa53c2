package models

import "time"

// A request rejected by the rate limiter
type RateLimitEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
	Policy     string    `gorm:"index;not null" json:"policy"`
	Identifier string    `gorm:"index;not null" json:"identifier"`
	Method     string    `json:"method,omitempty"`
	Path       string    `json:"path,omitempty"`
	ResetIn    int       `json:"reset_in"`
}

func (RateLimitEvent) TableName() string {
	return "rate_limit_events"
}
