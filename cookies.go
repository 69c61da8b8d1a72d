package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Cookie names used by the session layer.
const (
	authCookieName       = "auth_token"         // access token, HTTP-only
	refreshCookieName    = "refresh_token"      // refresh token, HTTP-only
	csrfCookieName       = "csrf_token"         // double-submit value, readable by script
	twoFactorCookieName  = "two_factor_token"   // pending-session token, HTTP-only
	oauthStateCookieName = "google_oauth_state" // OAuth handshake state, HTTP-only
)

func (a *app) setCookie(c *gin.Context, name, value string, maxAge time.Duration, httpOnly bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Secure:   a.cfg.CookieSecure,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *app) clearCookie(c *gin.Context, name string, httpOnly bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   a.cfg.CookieSecure,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *app) setSessionCookies(c *gin.Context, accessToken, refreshRaw string, refreshExpiry time.Time) {
	a.setCookie(c, authCookieName, accessToken, a.cfg.AccessTokenTTL, true)
	a.setCookie(c, refreshCookieName, refreshRaw, time.Until(refreshExpiry), true)
}

func (a *app) clearSessionCookies(c *gin.Context) {
	a.clearCookie(c, authCookieName, true)
	a.clearCookie(c, refreshCookieName, true)
	a.clearCookie(c, twoFactorCookieName, true)
}
