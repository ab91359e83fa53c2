package features

import (
	"time"

	"github.com/zerotocryptodev/gateway/internal/models"
)

// Snapshot is every known flag as of FetchedAt. It is the unit stored in
// both cache tiers and is never mutated after construction.
type Snapshot struct {
	Flags     []models.FeatureFlag `json:"flags"`
	FetchedAt time.Time            `json:"fetched_at"`
}

// Fresh reports whether s is younger than ttl at now. A nil snapshot is
// never fresh.
func (s *Snapshot) Fresh(now time.Time, ttl time.Duration) bool {
	return s != nil && now.Sub(s.FetchedAt) < ttl
}

func (s *Snapshot) Lookup(key string) (models.FeatureFlag, bool) {
	for _, f := range s.Flags {
		if f.Key == key {
			return f, true
		}
	}
	return models.FeatureFlag{}, false
}

// newer returns whichever of a and b was fetched later.
func newer(a, b *Snapshot) *Snapshot {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.FetchedAt.After(a.FetchedAt):
		return b
	default:
		return a
	}
}
