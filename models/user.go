package models

import (
	"time"
)

// User is the identity record for a traveller account. Users are created on
// registration or on first Google login and are never hard-deleted by the
// auth subsystem.
type User struct {
	ID               uint `gorm:"primaryKey"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time `gorm:"index"`
	Email            string     `gorm:"size:255;not null;uniqueIndex"`
	HashedPassword   []byte     `gorm:"not null"`
	GoogleSubject    *string    `gorm:"size:255;uniqueIndex"` // external identity id, unique when set
	DisplayName      string     `gorm:"size:255"`
	FirstName        string     `gorm:"size:255"`
	LastName         string     `gorm:"size:255"`
	AvatarURL        string     `gorm:"size:512"`
	EmailVerifiedAt  *time.Time
	TwoFactorEnabled bool `gorm:"default:false;not null"`
}
