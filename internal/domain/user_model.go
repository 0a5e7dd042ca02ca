package domain

import "time"

// User is an operator account for the read API. The first registered account
// becomes admin.
type User struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Email    string `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Password string `gorm:"not null;size:100" json:"-"`
	Role     string `gorm:"not null;default:'user';check:role IN ('user', 'admin')" json:"role"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
