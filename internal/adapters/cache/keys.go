// Package cache holds the per-user aggregate caches that executed actions
// invalidate, plus the broadcast of those invalidations.
package cache

import (
	"fmt"
	"time"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// Channel is where invalidations are published for other consumers.
const Channel = "nutria:invalidations"

// Key is the storage key of one cached aggregate of a user.
func Key(userID domain.UserID, key domain.CacheKey) string {
	return fmt.Sprintf("nutria:%s:%s", userID, key)
}

// Invalidation is the message published on Channel.
type Invalidation struct {
	UserID domain.UserID     `json:"user_id"`
	Keys   []domain.CacheKey `json:"keys"`
	At     time.Time         `json:"at"`
}
