package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"kovoy/models"
	"kovoy/pkg/hashutil"

	"gorm.io/gorm"
)

const emailTokenBytes = 32

// issueEmailToken deletes unused predecessors of the same purpose for the
// user, stores the hash of a fresh random token with the purpose-specific
// TTL, and returns the raw token for delivery via a link.
func (a *app) issueEmailToken(userID uint, purpose string) (string, error) {
	b := make([]byte, emailTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	raw := hex.EncodeToString(b)
	ttl := a.cfg.EmailVerificationTTL
	if purpose == models.EmailTokenReset {
		ttl = a.cfg.ResetTTL
	}
	err := a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND purpose = ? AND used_at IS NULL", userID, purpose).
			Delete(&models.EmailToken{}).Error; err != nil {
			return err
		}
		rec := models.EmailToken{
			UserID:    userID,
			Purpose:   purpose,
			TokenHash: hashutil.Token(raw),
			ExpiresAt: time.Now().Add(ttl),
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

// consumeEmailToken resolves a raw token to one of valid/used/expired/invalid
// and returns the owning user id when valid. A valid verification token is
// marked used but kept, so a second presentation reports "used"; a valid
// reset token is deleted, so a second presentation reports "invalid".
func (a *app) consumeEmailToken(raw, purpose string) (tokenStatus, uint, error) {
	var status tokenStatus
	var userID uint
	err := a.db.Transaction(func(tx *gorm.DB) error {
		var rec models.EmailToken
		err := tx.Where("token_hash = ? AND purpose = ?", hashutil.Token(raw), purpose).
			First(&rec).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				status = tokenInvalid
				return nil
			}
			return err
		}
		if rec.UsedAt != nil {
			status = tokenUsed
			return nil
		}
		if time.Now().After(rec.ExpiresAt) {
			status = tokenExpired
			return nil
		}
		if purpose == models.EmailTokenReset {
			if err := tx.Delete(&rec).Error; err != nil {
				return err
			}
		} else {
			now := time.Now()
			res := tx.Model(&models.EmailToken{}).
				Where("id = ? AND used_at IS NULL", rec.ID).
				Update("used_at", now)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				status = tokenUsed
				return nil
			}
		}
		status = tokenValid
		userID = rec.UserID
		return nil
	})
	if err != nil {
		return tokenInvalid, 0, err
	}
	return status, userID, nil
}
