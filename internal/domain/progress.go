package domain

import "time"

// ─── Progress Types ─────────────────────────────────────────────────────────

// NoTier is the acknowledged tier of a user who has never been granted one.
const NoTier = -1

// UserProgress is the durable per-user counter record.
type UserProgress struct {
	UserID           string    `json:"user_id"`
	ActivityCount    int64     `json:"activity_count"`    // Never decreases
	AcknowledgedTier int       `json:"acknowledged_tier"` // Highest tier actually granted, NoTier if none
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewUserProgress returns the default record for a user first seen now.
func NewUserProgress(userID string) UserProgress {
	return UserProgress{
		UserID:           userID,
		AcknowledgedTier: NoTier,
	}
}

// ActivityEvent is one qualifying chat message. Delivery is at-least-once.
type ActivityEvent struct {
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id"`
}
