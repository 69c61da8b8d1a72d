package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"kovoy/models"
	"kovoy/pkg/hashutil"

	"gorm.io/gorm"
)

// Credential store operations. Email is the natural key; the Google subject
// id, when set, is unique. Nothing here ever deletes a user.

func (a *app) findUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := a.db.Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *app) findUserByGoogleSubject(subject string) (*models.User, error) {
	var user models.User
	if err := a.db.Where("google_subject = ?", subject).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *app) createUser(email, password, firstName, lastName, displayName string) (*models.User, error) {
	email = normalizeEmail(email)
	// pre-check existing (optimistic); the unique index catches races below
	var existing models.User
	if err := a.db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, errEmailTaken
	}
	hashed, err := hashutil.Password(password, a.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Email:          email,
		HashedPassword: hashed,
		FirstName:      firstName,
		LastName:       lastName,
		DisplayName:    displayName,
	}
	if err := a.db.Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, errEmailTaken
		}
		return nil, err
	}
	return &user, nil
}

// authenticate collapses unknown-email and wrong-password into the same error.
func (a *app) authenticate(email, password string) (*models.User, error) {
	user, err := a.findUserByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}
	if !hashutil.CheckPassword(user.HashedPassword, password) {
		return nil, errInvalidCredentials
	}
	return user, nil
}

func (a *app) markEmailVerified(userID uint) error {
	now := time.Now()
	return a.db.Model(&models.User{}).Where("id = ? AND email_verified_at IS NULL", userID).
		Update("email_verified_at", now).Error
}

// backfillProfile applies first-write-wins semantics for profile fields
// asserted by an external identity: a name or avatar the user already set is
// never overwritten.
func (a *app) backfillProfile(user *models.User, firstName, lastName, displayName, avatarURL string) error {
	updates := map[string]interface{}{}
	if user.FirstName == "" && firstName != "" {
		updates["first_name"] = firstName
		user.FirstName = firstName
	}
	if user.LastName == "" && lastName != "" {
		updates["last_name"] = lastName
		user.LastName = lastName
	}
	if user.DisplayName == "" && displayName != "" {
		updates["display_name"] = displayName
		user.DisplayName = displayName
	}
	if user.AvatarURL == "" && avatarURL != "" {
		updates["avatar_url"] = avatarURL
		user.AvatarURL = avatarURL
	}
	if len(updates) == 0 {
		return nil
	}
	return a.db.Model(user).Updates(updates).Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
