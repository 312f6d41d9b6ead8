package models

import "time"

// Presence status values.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// PresenceRecord mirrors the last known presence of a user in the durable store.
// ChangedAt is the transition time in unix milliseconds and orders writes.
type PresenceRecord struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	Status    string    `gorm:"size:16;not null" json:"status"`
	LastSeen  int64     `json:"last_seen"`
	ChangedAt int64     `gorm:"not null;default:0" json:"changed_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
