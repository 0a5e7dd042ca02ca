package domain

import "time"

// SuspiciousEntry is a derived record written only by the anomaly detector.
// There is at most one row per IP; re-detection replaces reason, count and
// timestamp instead of appending.
type SuspiciousEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	IP           string    `gorm:"size:45;uniqueIndex;not null" json:"ip"`
	Reason       string    `gorm:"type:text;not null" json:"reason"`
	DetectedAt   time.Time `gorm:"autoCreateTime" json:"detected_at"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	RequestCount int64     `gorm:"not null;default:0" json:"request_count"`
}
