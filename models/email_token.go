package models

import "time"

// EmailToken purposes.
const (
	EmailTokenVerification = "verification"
	EmailTokenReset        = "reset"
)

// EmailToken backs both email-confirmation links and password-reset links.
// Verification tokens keep their row after use (UsedAt set) so a second
// presentation can be told apart from garbage; reset tokens are deleted on
// consumption and therefore single-use by construction.
type EmailToken struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    uint      `gorm:"index;not null"`
	Purpose   string    `gorm:"size:16;not null;index"`
	TokenHash string    `gorm:"size:128;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
	UsedAt    *time.Time
}
