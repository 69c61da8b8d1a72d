package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kovoy/models"
	"kovoy/pkg/hashutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
	"gorm.io/gorm"
)

const oauthStateCookieTTL = 10 * time.Minute

var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// googleAssertion is the normalized identity assertion extracted from a
// verified Google ID token.
type googleAssertion struct {
	Subject       string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
	Name          string
	Picture       string
	Issuer        string
	Audience      string
}

func newGoogleOAuthConfig(cfg Config) *oauth2.Config {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" || cfg.GoogleRedirectURL == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

// completeGoogleLogin reconciles a verified external identity assertion with
// the local account base. On every success path first-write-wins profile
// backfill applies and the email counts as verified, since the issuer
// vouched for it.
func (a *app) completeGoogleLogin(as googleAssertion) (*models.User, error) {
	if !issuerAllowed(as.Issuer) || as.Audience != a.cfg.GoogleClientID {
		return nil, errBadAssertion
	}
	if !as.EmailVerified {
		return nil, fmt.Errorf("%w: email not verified by issuer", errBadAssertion)
	}
	email := normalizeEmail(as.Email)

	// 1. already linked by subject id
	user, err := a.findUserByGoogleSubject(as.Subject)
	if err == nil {
		if user.Email != email {
			if err := a.db.Model(user).Update("email", email).Error; err != nil {
				if isUniqueConstraintError(err) {
					return nil, errIdentityConflict
				}
				return nil, err
			}
			user.Email = email
		}
		if err := a.finishExternalUser(user, as); err != nil {
			return nil, err
		}
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2/3. existing local account with this email
	user, err = a.findUserByEmail(email)
	if err == nil {
		if user.GoogleSubject != nil && *user.GoogleSubject != as.Subject {
			// a different external identity already owns this account
			return nil, errIdentityConflict
		}
		if user.GoogleSubject == nil {
			if err := a.db.Model(user).Update("google_subject", as.Subject).Error; err != nil {
				return nil, err
			}
			sub := as.Subject
			user.GoogleSubject = &sub
		}
		if err := a.finishExternalUser(user, as); err != nil {
			return nil, err
		}
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 4. first login: create an account with an unusable random password
	unusable, err := hashutil.Password(uuid.NewString()+uuid.NewString(), a.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sub := as.Subject
	user = &models.User{
		Email:           email,
		HashedPassword:  unusable,
		GoogleSubject:   &sub,
		FirstName:       as.GivenName,
		LastName:        as.FamilyName,
		DisplayName:     as.Name,
		AvatarURL:       as.Picture,
		EmailVerifiedAt: &now,
	}
	if err := a.db.Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, errIdentityConflict
		}
		return nil, err
	}
	return user, nil
}

// finishExternalUser applies the shared success-path side effects: profile
// backfill and marking the email verified.
func (a *app) finishExternalUser(user *models.User, as googleAssertion) error {
	if err := a.backfillProfile(user, as.GivenName, as.FamilyName, as.Name, as.Picture); err != nil {
		return err
	}
	if user.EmailVerifiedAt == nil {
		if err := a.markEmailVerified(user.ID); err != nil {
			return err
		}
		now := time.Now()
		user.EmailVerifiedAt = &now
	}
	return nil
}

func issuerAllowed(issuer string) bool {
	for _, allowed := range googleIssuers {
		if issuer == allowed {
			return true
		}
	}
	return false
}

// googleLoginHandler starts the handshake: it signs a random state value into
// a short-lived cookie and redirects to Google's consent screen.
func (a *app) googleLoginHandler(c *gin.Context) {
	if a.oauth == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "google sign-in is not configured"})
		return
	}
	state := uuid.NewString()
	a.setCookie(c, oauthStateCookieName, a.signState(state)+":"+state, oauthStateCookieTTL, true)
	c.Redirect(http.StatusTemporaryRedirect, a.oauth.AuthCodeURL(state))
}

// googleCallbackHandler finishes the handshake: state check, code exchange,
// ID-token verification, identity linking, then the identical
// post-authentication step as a password login.
func (a *app) googleCallbackHandler(c *gin.Context) {
	if a.oauth == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "google sign-in is not configured"})
		return
	}
	stateCookie, err := c.Cookie(oauthStateCookieName)
	a.clearCookie(c, oauthStateCookieName, true)
	if err != nil {
		a.redirectLoginError(c, "state_missing")
		return
	}
	if !a.stateValid(stateCookie, c.Query("state")) {
		a.redirectLoginError(c, "state_mismatch")
		return
	}
	code := c.Query("code")
	if code == "" {
		a.redirectLoginError(c, "code_missing")
		return
	}

	tok, err := a.oauth.Exchange(c.Request.Context(), code)
	if err != nil {
		a.log.Warn("google code exchange failed", zap.Error(err))
		a.redirectLoginError(c, "provider_error")
		return
	}
	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		a.redirectLoginError(c, "provider_error")
		return
	}
	payload, err := idtoken.Validate(c.Request.Context(), rawID, a.cfg.GoogleClientID)
	if err != nil {
		a.log.Warn("google id token rejected", zap.Error(err))
		a.redirectLoginError(c, "provider_error")
		return
	}

	as := assertionFromPayload(payload)
	user, err := a.completeGoogleLogin(as)
	if err != nil {
		switch {
		case errors.Is(err, errIdentityConflict):
			a.redirectLoginError(c, "identity_conflict")
		case errors.Is(err, errBadAssertion):
			a.redirectLoginError(c, "assertion_rejected")
		default:
			a.log.Error("google login failed", zap.Error(err))
			a.redirectLoginError(c, "internal")
		}
		return
	}

	// same post-authentication step as a password login
	if user.TwoFactorEnabled {
		if err := a.beginTwoFactor(c, user, false); err != nil {
			a.redirectLoginError(c, "internal")
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, a.cfg.AppBaseURL+"/login?twoFactor=1")
		return
	}
	if err := a.establishSession(c, user, false); err != nil {
		a.log.Error("failed to establish session after google login", zap.Error(err))
		a.redirectLoginError(c, "internal")
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, a.cfg.AppBaseURL+"/")
}

func (a *app) redirectLoginError(c *gin.Context, code string) {
	c.Redirect(http.StatusTemporaryRedirect, a.cfg.AppBaseURL+"/login?error="+code)
}

func (a *app) signState(state string) string {
	mac := hmac.New(sha256.New, a.cfg.JWTSecret)
	mac.Write([]byte(state))
	return hex.EncodeToString(mac.Sum(nil))
}

// stateValid checks the HMAC on the round-tripped cookie and that the query
// state matches the value the cookie was bound to.
func (a *app) stateValid(cookieValue, queryState string) bool {
	parts := strings.SplitN(cookieValue, ":", 2)
	if len(parts) != 2 || queryState == "" {
		return false
	}
	sig, state := parts[0], parts[1]
	if !hmac.Equal([]byte(sig), []byte(a.signState(state))) {
		return false
	}
	return state == queryState
}

func assertionFromPayload(payload *idtoken.Payload) googleAssertion {
	str := func(key string) string {
		v, _ := payload.Claims[key].(string)
		return v
	}
	verified, _ := payload.Claims["email_verified"].(bool)
	return googleAssertion{
		Subject:       payload.Subject,
		Email:         str("email"),
		EmailVerified: verified,
		GivenName:     str("given_name"),
		FamilyName:    str("family_name"),
		Name:          str("name"),
		Picture:       str("picture"),
		Issuer:        payload.Issuer,
		Audience:      payload.Audience,
	}
}
