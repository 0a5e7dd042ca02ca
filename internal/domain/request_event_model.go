package domain

import "time"

// RequestEvent records one request that passed the gate. Rows are append-only:
// the gate inserts them, the retention sweeper deletes them, nothing updates them.
type RequestEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	// IP holds the resolved client address as a string (IPv4 or IPv6).
	IP string `gorm:"size:45;index;not null" json:"ip"`

	Timestamp time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
	Path      string    `gorm:"size:255;index;not null" json:"path"`
	Method    string    `gorm:"size:10;not null;default:'GET'" json:"method"`
	UserAgent string    `gorm:"type:text" json:"user_agent,omitempty"`

	// Country and City are filled by asynchronous geolocation enrichment and
	// may stay empty when no provider is configured.
	Country string `gorm:"size:100;index" json:"country,omitempty"`
	City    string `gorm:"size:100" json:"city,omitempty"`

	StatusCode int `gorm:"not null;default:200" json:"status_code"`
}
