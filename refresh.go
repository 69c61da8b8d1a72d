package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"kovoy/models"
	"kovoy/pkg/hashutil"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const refreshTokenBytes = 32

// clientInfo is the issuing client metadata recorded alongside each refresh
// token.
type clientInfo struct {
	IP        string
	UserAgent string
}

// issueRefreshToken generates a high-entropy random token, stores its hash
// with the TTL class selected by remember, and returns the raw value and its
// expiry. The raw value is never retrievable again.
func (a *app) issueRefreshToken(tx *gorm.DB, userID uint, remember bool, client clientInfo) (string, time.Time, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}
	raw := hex.EncodeToString(b)
	ttl := a.cfg.RefreshTTLSession
	if remember {
		ttl = a.cfg.RefreshTTLRemember
	}
	expires := time.Now().Add(ttl)
	rt := models.RefreshToken{
		UserID:    userID,
		TokenHash: hashutil.Token(raw),
		Remember:  remember,
		ExpiresAt: expires,
		ClientIP:  client.IP,
		UserAgent: client.UserAgent,
	}
	if err := tx.Create(&rt).Error; err != nil {
		return "", time.Time{}, err
	}
	return raw, expires, nil
}

// rotateRefreshToken exchanges a raw refresh token for a successor of the
// same remember class. The lookup, the successor insert and the
// revoke-with-replaced-by update run in one transaction, and the revoke is a
// compare-and-swap on revoked_at so a concurrent duplicate rotation cannot
// mint two valid successors from one token.
//
// Presenting an already-rotated token is treated as a theft signal: the whole
// chain for that user is revoked and the caller still only sees
// errInvalidRefreshToken.
func (a *app) rotateRefreshToken(raw string, client clientInfo) (string, time.Time, uint, error) {
	var (
		newRaw  string
		expires time.Time
		userID  uint
		outcome error
	)
	// Rejections travel in outcome rather than the callback return value: the
	// chain revocation below has to commit, and a non-nil return would roll
	// it back.
	err := a.db.Transaction(func(tx *gorm.DB) error {
		var rt models.RefreshToken
		if err := tx.Where("token_hash = ?", hashutil.Token(raw)).First(&rt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				outcome = errInvalidRefreshToken
				return nil
			}
			return err
		}
		if rt.RevokedAt != nil {
			a.log.Warn("refresh token reuse detected, revoking chain",
				zap.Uint("user_id", rt.UserID), zap.String("client_ip", client.IP))
			if err := a.revokeUserChain(tx, rt.UserID); err != nil {
				return err
			}
			outcome = errInvalidRefreshToken
			return nil
		}
		if time.Now().After(rt.ExpiresAt) {
			outcome = errInvalidRefreshToken
			return nil
		}

		successor, exp, err := a.issueRefreshToken(tx, rt.UserID, rt.Remember, client)
		if err != nil {
			return err
		}
		now := time.Now()
		successorHash := hashutil.Token(successor)
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", rt.ID).
			Updates(map[string]interface{}{"revoked_at": now, "replaced_by": successorHash})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// lost a rotation race: someone exchanged this token first
			a.log.Warn("concurrent refresh rotation detected, revoking chain", zap.Uint("user_id", rt.UserID))
			if err := a.revokeUserChain(tx, rt.UserID); err != nil {
				return err
			}
			outcome = errInvalidRefreshToken
			return nil
		}
		newRaw, expires, userID = successor, exp, rt.UserID
		return nil
	})
	if err != nil {
		return "", time.Time{}, 0, err
	}
	if outcome != nil {
		return "", time.Time{}, 0, outcome
	}
	return newRaw, expires, userID, nil
}

// revokeUserChain revokes every live refresh token of a user.
func (a *app) revokeUserChain(tx *gorm.DB, userID uint) error {
	now := time.Now()
	return tx.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now).Error
}

// revokeRefreshToken idempotently revokes a single token, used on logout.
// Unknown or already-revoked tokens are not an error.
func (a *app) revokeRefreshToken(raw string) error {
	now := time.Now()
	return a.db.Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashutil.Token(raw)).
		Update("revoked_at", now).Error
}
