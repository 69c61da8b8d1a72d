package main

import "errors"

// Expected auth failures. Handlers map these to status codes and small JSON
// payloads; anything else is treated as an internal error and never leaks
// details to the client.
var (
	// Identical for unknown email and wrong password, to avoid enumeration.
	errInvalidCredentials = errors.New("invalid email or password")
	errEmailTaken         = errors.New("email already registered")

	// Collapses not-found, expired, revoked and reused into one externally
	// visible reason.
	errInvalidRefreshToken = errors.New("invalid refresh token")

	errTwoFactorInvalid = errors.New("invalid two-factor code")
	errTwoFactorExpired = errors.New("two-factor code expired")
	errTwoFactorTooMany = errors.New("too many two-factor attempts")

	errIdentityConflict = errors.New("email already linked to a different external account")
	errBadAssertion     = errors.New("identity assertion rejected")

	errStoreBusy = errors.New("store busy")
)

// tokenStatus is the outcome of consuming an email-delivered token.
type tokenStatus string

const (
	tokenValid   tokenStatus = "valid"
	tokenUsed    tokenStatus = "used"
	tokenExpired tokenStatus = "expired"
	tokenInvalid tokenStatus = "invalid"
)
