package models

import "time"

// RefreshToken stores a hashed representation of a refresh token for session
// rotation and revocation. Rows form an append-only rotation chain: the only
// mutation ever applied is setting RevokedAt/ReplacedBy.
type RefreshToken struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	UserID     uint      `gorm:"index;not null"`
	TokenHash  string    `gorm:"size:128;not null;uniqueIndex"`
	Remember   bool      `gorm:"default:false;not null"` // selects the long or short TTL class
	ExpiresAt  time.Time `gorm:"index;not null"`
	RevokedAt  *time.Time
	ReplacedBy *string `gorm:"size:128"` // hash of the successor token, set on rotation
	ClientIP   string  `gorm:"size:64"`
	UserAgent  string  `gorm:"size:255"`
}
