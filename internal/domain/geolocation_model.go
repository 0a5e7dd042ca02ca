package domain

import "time"

// IPGeolocation persists resolved locations so repeated lookups for the same
// address do not have to hit the provider again after the cache expires.
type IPGeolocation struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	IP          string    `gorm:"size:45;uniqueIndex;not null" json:"ip"`
	Country     string    `gorm:"size:100" json:"country"`
	City        string    `gorm:"size:100" json:"city,omitempty"`
	Region      string    `gorm:"size:100" json:"region,omitempty"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	Timezone    string    `gorm:"size:50" json:"timezone,omitempty"`
	LastUpdated time.Time `gorm:"autoUpdateTime" json:"last_updated"`
}
