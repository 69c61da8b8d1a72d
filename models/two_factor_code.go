package models

import "time"

// TwoFactorCode is the pending login challenge for a user. At most one
// unconsumed row exists per user; issuing a new code deletes its predecessors.
type TwoFactorCode struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	UserID     uint      `gorm:"index;not null"`
	CodeHash   string    `gorm:"size:128;not null"`
	ExpiresAt  time.Time `gorm:"not null"`
	Attempts   int       `gorm:"default:0;not null"`
	ConsumedAt *time.Time
}
