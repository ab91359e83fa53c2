package features

import (
	"github.com/cespare/xxhash/v2"

	"github.com/zerotocryptodev/gateway/internal/models"
)

// Bucket maps flagKey+seed onto [0,100). The same pair always lands in the
// same bucket; changing the hash reshuffles users but keeps the proportions.
func Bucket(flagKey, seed string) int {
	return int(xxhash.Sum64String(flagKey+seed) % 100)
}

// Decide applies the gating rules to a single flag. seed is the user id, or
// the session id for anonymous callers; an empty seed cannot be bucketed and
// yields false for partial rollouts.
func Decide(flag models.FeatureFlag, userID, sessionID string) bool {
	if !flag.Enabled {
		return false
	}
	if flag.HasOverride(userID) {
		return true
	}
	if flag.RolloutPercentage >= 100 {
		return true
	}
	if flag.RolloutPercentage <= 0 {
		return false
	}

	seed := userID
	if seed == "" {
		seed = sessionID
	}
	if seed == "" {
		return false
	}

	return Bucket(flag.Key, seed) < flag.RolloutPercentage
}
