package main

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"kovoy/models"
	"kovoy/pkg/hashutil"

	"gorm.io/gorm"
)

const twoFactorCodeDigits = 4

// issueTwoFactorCode replaces any unconsumed code for the user with a fresh
// 4-digit challenge and returns the plaintext for out-of-band delivery. The
// plaintext is never stored.
func (a *app) issueTwoFactorCode(userID uint) (string, error) {
	code, err := randomDigits(twoFactorCodeDigits)
	if err != nil {
		return "", err
	}
	err = a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND consumed_at IS NULL", userID).
			Delete(&models.TwoFactorCode{}).Error; err != nil {
			return err
		}
		rec := models.TwoFactorCode{
			UserID:    userID,
			CodeHash:  hashutil.Token(code),
			ExpiresAt: time.Now().Add(a.cfg.TwoFactorTTL),
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// verifyTwoFactorCode checks a candidate against the user's pending
// challenge. The increment-and-check of the attempt counter runs inside one
// transaction with a guarded update so two concurrent wrong submissions
// cannot both pass under the limit. Rejections are carried out of the
// callback in outcome: returning them directly would roll back the attempt
// bookkeeping the rejection depends on.
func (a *app) verifyTwoFactorCode(userID uint, candidate string) error {
	var outcome error
	err := a.db.Transaction(func(tx *gorm.DB) error {
		var rec models.TwoFactorCode
		err := tx.Where("user_id = ? AND consumed_at IS NULL", userID).
			Order("id desc").First(&rec).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				outcome = errTwoFactorInvalid
				return nil
			}
			return err
		}
		if time.Now().After(rec.ExpiresAt) {
			outcome = errTwoFactorExpired
			return nil
		}
		if rec.Attempts >= a.cfg.TwoFactorMaxAttempts {
			if err := tx.Delete(&rec).Error; err != nil {
				return err
			}
			outcome = errTwoFactorTooMany
			return nil
		}
		candidateHash := hashutil.Token(candidate)
		if subtle.ConstantTimeCompare([]byte(rec.CodeHash), []byte(candidateHash)) != 1 {
			res := tx.Model(&models.TwoFactorCode{}).
				Where("id = ? AND attempts = ?", rec.ID, rec.Attempts).
				Update("attempts", rec.Attempts+1)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// raced with another wrong submission; count it anyway
				if err := tx.Model(&models.TwoFactorCode{}).Where("id = ?", rec.ID).
					Update("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
					return err
				}
			}
			outcome = errTwoFactorInvalid
			return nil
		}
		now := time.Now()
		return tx.Model(&rec).Update("consumed_at", now).Error
	})
	if err != nil {
		return err
	}
	return outcome
}

// randomDigits returns a zero-padded numeric code of length n.
func randomDigits(n int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < n; i++ {
		max.Mul(max, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
