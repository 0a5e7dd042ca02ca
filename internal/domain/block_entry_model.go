package domain

import "time"

// BlockEntry is one row of the authoritative blocklist. The admin API writes
// these; the gate only ever reads them through the blocklist cache, so a
// deactivation becomes visible within the cache TTL, not instantly.
type BlockEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	IP        string    `gorm:"size:45;uniqueIndex;not null" json:"ip"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	Reason    string    `gorm:"type:text" json:"reason"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
}
