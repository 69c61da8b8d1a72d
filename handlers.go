package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"kovoy/models"
	"kovoy/pkg/hashutil"
	"kovoy/pkg/jwtauth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (a *app) setupRoutes(r *gin.Engine) {
	r.Use(a.ensureCSRFCookie())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	csrf := a.requireCSRF()
	r.POST("/register", csrf, a.registerHandler)
	r.POST("/login", csrf, a.loginHandler)
	r.POST("/refresh", csrf, a.refreshHandler)
	r.POST("/logout", csrf, a.logoutHandler)
	r.POST("/two-step/verify", csrf, a.twoStepVerifyHandler)
	r.POST("/two-step/resend", csrf, a.twoStepResendHandler)
	r.GET("/confirm-email", a.confirmEmailHandler)
	r.POST("/confirm-email", csrf, a.confirmEmailHandler)
	r.POST("/email-verification/resend", csrf, a.resendVerificationHandler)
	r.POST("/forgot", csrf, a.forgotHandler)
	r.POST("/reset", csrf, a.resetHandler)

	r.GET("/auth/google", a.googleLoginHandler)
	r.GET("/auth/google/callback", a.googleCallbackHandler)

	authGroup := r.Group("")
	authGroup.Use(a.requireAuth())
	authGroup.GET("/me", a.meHandler)
}

// requireAuth accepts the access token from the auth cookie or, for API
// clients, a bearer Authorization header.
func (a *app) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(authCookieName)
		if err != nil || token == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = h[7:]
			}
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}
		claims, err := a.jwt.VerifyAccess(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		c.Set("userID", claims.UserID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

func (a *app) registerHandler(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required,email"`
		Password    string `json:"password" binding:"required"`
		FirstName   string `json:"firstName"`
		LastName    string `json:"lastName"`
		DisplayName string `json:"displayName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password too short (min 8)"})
		return
	}
	user, err := a.createUser(req.Email, req.Password, req.FirstName, req.LastName, req.DisplayName)
	if err != nil {
		if errors.Is(err, errEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": errEmailTaken.Error(), "code": "email_taken"})
			return
		}
		a.serverError(c, "registration failed", err)
		return
	}
	if a.cfg.RequireEmailVerification {
		if raw, err := a.issueEmailToken(user.ID, models.EmailTokenVerification); err == nil {
			a.sendVerificationMail(user, raw)
		} else {
			a.log.Error("failed to issue verification token", zap.Error(err))
		}
	}
	c.JSON(http.StatusCreated, gin.H{"message": "user registered successfully", "verificationRequired": a.cfg.RequireEmailVerification})
}

func (a *app) loginHandler(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Remember bool   `json:"remember"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := a.authenticate(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": errInvalidCredentials.Error()})
			return
		}
		a.serverError(c, "login failed", err)
		return
	}

	if a.cfg.RequireEmailVerification && user.EmailVerifiedAt == nil {
		// expected branch, not a hard failure: reissue the link and tell the
		// client to redirect
		if raw, err := a.issueEmailToken(user.ID, models.EmailTokenVerification); err == nil {
			a.sendVerificationMail(user, raw)
		} else {
			a.log.Error("failed to issue verification token", zap.Error(err))
		}
		c.JSON(http.StatusForbidden, gin.H{"code": "email_verification_required"})
		return
	}

	if user.TwoFactorEnabled {
		if err := a.beginTwoFactor(c, user, req.Remember); err != nil {
			a.serverError(c, "failed to start two-factor challenge", err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"twoFactorRequired": true})
		return
	}

	if err := a.establishSession(c, user, req.Remember); err != nil {
		a.serverError(c, "failed to establish session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful"})
}

// beginTwoFactor issues a fresh challenge code, mails it, and hands the
// browser the pending-session cookie that scopes /two-step/* to this user.
func (a *app) beginTwoFactor(c *gin.Context, user *models.User, remember bool) error {
	code, err := a.issueTwoFactorCode(user.ID)
	if err != nil {
		return err
	}
	a.sendTwoFactorMail(user, code)
	pending, err := a.jwt.IssueTwoFactor(user.ID, remember)
	if err != nil {
		return err
	}
	a.setCookie(c, twoFactorCookieName, pending, a.cfg.TwoFactorTTL, true)
	return nil
}

// establishSession mints the access token and the first refresh token of a
// new chain, and writes both cookies.
func (a *app) establishSession(c *gin.Context, user *models.User, remember bool) error {
	access, err := a.jwt.IssueAccess(user.ID, user.Email)
	if err != nil {
		return err
	}
	raw, expiry, err := a.issueRefreshToken(a.db, user.ID, remember, clientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()})
	if err != nil {
		return err
	}
	a.setSessionCookies(c, access, raw, expiry)
	a.clearCookie(c, twoFactorCookieName, true)
	return nil
}

func (a *app) refreshHandler(c *gin.Context) {
	raw, err := c.Cookie(refreshCookieName)
	if err != nil || raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errInvalidRefreshToken.Error()})
		return
	}
	var (
		newRaw    string
		newExpiry time.Time
		userID    uint
	)
	client := clientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	err = withBusyRetry(func() error {
		var rErr error
		newRaw, newExpiry, userID, rErr = a.rotateRefreshToken(raw, client)
		return rErr
	})
	switch {
	case errors.Is(err, errInvalidRefreshToken):
		a.clearSessionCookies(c)
		c.JSON(http.StatusUnauthorized, gin.H{"error": errInvalidRefreshToken.Error()})
		return
	case errors.Is(err, errStoreBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store busy, retry", "code": "store_busy"})
		return
	case err != nil:
		a.serverError(c, "refresh failed", err)
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		a.clearSessionCookies(c)
		c.JSON(http.StatusUnauthorized, gin.H{"error": errInvalidRefreshToken.Error()})
		return
	}
	access, err := a.jwt.IssueAccess(user.ID, user.Email)
	if err != nil {
		a.serverError(c, "refresh failed", err)
		return
	}
	a.setSessionCookies(c, access, newRaw, newExpiry)
	c.JSON(http.StatusOK, gin.H{"message": "session refreshed"})
}

func (a *app) logoutHandler(c *gin.Context) {
	if raw, err := c.Cookie(refreshCookieName); err == nil && raw != "" {
		if err := a.revokeRefreshToken(raw); err != nil {
			a.log.Warn("failed to revoke refresh token on logout", zap.Error(err))
		}
	}
	a.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (a *app) twoStepVerifyHandler(c *gin.Context) {
	sess, ok := a.pendingTwoFactor(c)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := withBusyRetry(func() error {
		return a.verifyTwoFactorCode(sess.UserID, req.Code)
	})
	switch {
	case errors.Is(err, errTwoFactorInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": errTwoFactorInvalid.Error(), "code": "invalid_code"})
		return
	case errors.Is(err, errTwoFactorExpired):
		// the pending session is useless once the code is stale
		a.clearCookie(c, twoFactorCookieName, true)
		c.JSON(http.StatusUnauthorized, gin.H{"error": errTwoFactorExpired.Error(), "code": "code_expired"})
		return
	case errors.Is(err, errTwoFactorTooMany):
		a.clearCookie(c, twoFactorCookieName, true)
		c.JSON(http.StatusForbidden, gin.H{"error": errTwoFactorTooMany.Error(), "code": "too_many_attempts"})
		return
	case errors.Is(err, errStoreBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store busy, retry", "code": "store_busy"})
		return
	case err != nil:
		a.serverError(c, "two-factor verification failed", err)
		return
	}

	var user models.User
	if err := a.db.First(&user, sess.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	if err := a.establishSession(c, &user, sess.Remember); err != nil {
		a.serverError(c, "failed to establish session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful"})
}

func (a *app) twoStepResendHandler(c *gin.Context) {
	sess, ok := a.pendingTwoFactor(c)
	if !ok {
		return
	}
	var user models.User
	if err := a.db.First(&user, sess.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	code, err := a.issueTwoFactorCode(user.ID)
	if err != nil {
		a.serverError(c, "failed to reissue two-factor code", err)
		return
	}
	a.sendTwoFactorMail(&user, code)
	c.JSON(http.StatusOK, gin.H{"message": "code sent"})
}

// pendingTwoFactor resolves the pending-session cookie; without a valid one
// the two-step endpoints are unreachable.
func (a *app) pendingTwoFactor(c *gin.Context) (jwtauth.TwoFactorSession, bool) {
	token, err := c.Cookie(twoFactorCookieName)
	if err != nil || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no pending two-factor session"})
		return jwtauth.TwoFactorSession{}, false
	}
	sess, err := a.jwt.VerifyTwoFactor(token)
	if err != nil {
		a.clearCookie(c, twoFactorCookieName, true)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "two-factor session expired"})
		return jwtauth.TwoFactorSession{}, false
	}
	return sess, true
}

func (a *app) confirmEmailHandler(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		var req struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		token = req.Token
	}
	status, userID, err := a.consumeEmailToken(token, models.EmailTokenVerification)
	if err != nil {
		a.serverError(c, "email confirmation failed", err)
		return
	}
	switch status {
	case tokenValid:
		if err := a.markEmailVerified(userID); err != nil {
			a.serverError(c, "email confirmation failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "verified"})
	case tokenUsed:
		c.JSON(http.StatusConflict, gin.H{"status": string(tokenUsed)})
	case tokenExpired:
		c.JSON(http.StatusGone, gin.H{"status": string(tokenExpired)})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"status": string(tokenInvalid)})
	}
}

func (a *app) resendVerificationHandler(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// uniform response whether or not the account exists
	if user, err := a.findUserByEmail(req.Email); err == nil && user.EmailVerifiedAt == nil {
		if raw, err := a.issueEmailToken(user.ID, models.EmailTokenVerification); err == nil {
			a.sendVerificationMail(user, raw)
		} else {
			a.log.Error("failed to issue verification token", zap.Error(err))
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "if the address exists, a link has been sent"})
}

func (a *app) forgotHandler(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// uniform response whether or not the account exists
	if user, err := a.findUserByEmail(req.Email); err == nil {
		if raw, err := a.issueEmailToken(user.ID, models.EmailTokenReset); err == nil {
			a.sendResetMail(user, raw)
		} else {
			a.log.Error("failed to issue reset token", zap.Error(err))
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "if the address exists, a link has been sent"})
}

func (a *app) resetHandler(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password too short (min 8)"})
		return
	}
	status, userID, err := a.consumeEmailToken(req.Token, models.EmailTokenReset)
	if err != nil {
		a.serverError(c, "password reset failed", err)
		return
	}
	if status != tokenValid {
		c.JSON(http.StatusBadRequest, gin.H{"status": string(status)})
		return
	}
	hashed, err := hashutil.Password(req.Password, a.cfg.BcryptCost)
	if err != nil {
		a.serverError(c, "password reset failed", err)
		return
	}
	if err := a.db.Model(&models.User{}).Where("id = ?", userID).
		Update("hashed_password", hashed).Error; err != nil {
		a.serverError(c, "password reset failed", err)
		return
	}
	// a reset invalidates every open session for the account
	if err := a.db.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", gorm.Expr("CURRENT_TIMESTAMP")).Error; err != nil {
		a.log.Warn("failed to revoke sessions after reset", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

func (a *app) meHandler(c *gin.Context) {
	userID := c.GetUint("userID")
	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":               user.ID,
		"email":            user.Email,
		"firstName":        user.FirstName,
		"lastName":         user.LastName,
		"displayName":      user.DisplayName,
		"avatarUrl":        user.AvatarURL,
		"emailVerified":    user.EmailVerifiedAt != nil,
		"twoFactorEnabled": user.TwoFactorEnabled,
	})
}

// serverError hides unanticipated failures behind a generic response.
func (a *app) serverError(c *gin.Context, msg string, err error) {
	a.log.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
