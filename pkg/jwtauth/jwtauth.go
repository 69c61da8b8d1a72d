// Package jwtauth mints and verifies the stateless signed tokens used by the
// session layer: short-lived access tokens and the pending two-factor session
// token a browser holds between password check and code entry.
package jwtauth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, tampered and expired tokens alike.
var ErrInvalidToken = errors.New("invalid or expired token")

const (
	purposeAccess    = "access"
	purposeTwoFactor = "two_factor"
)

// Manager signs tokens with a server-held HMAC secret. Access tokens are
// stateless: they cannot be revoked individually before expiry, which is the
// accepted trade-off for the short TTL.
type Manager struct {
	secret       []byte
	accessTTL    time.Duration
	twoFactorTTL time.Duration
}

func New(secret []byte, accessTTL, twoFactorTTL time.Duration) *Manager {
	return &Manager{secret: secret, accessTTL: accessTTL, twoFactorTTL: twoFactorTTL}
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID uint
	Email  string
}

// TwoFactorSession binds a pending login to the user and the remember choice
// made at password time, scoped to the two-factor TTL.
type TwoFactorSession struct {
	UserID   uint
	Remember bool
}

func (m *Manager) IssueAccess(userID uint, email string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     strconv.FormatUint(uint64(userID), 10),
		"email":   email,
		"purpose": purposeAccess,
		"iat":     now.Unix(),
		"exp":     now.Add(m.accessTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) VerifyAccess(token string) (AccessClaims, error) {
	claims, err := m.parse(token, purposeAccess)
	if err != nil {
		return AccessClaims{}, err
	}
	userID, err := subjectID(claims)
	if err != nil {
		return AccessClaims{}, err
	}
	email, _ := claims["email"].(string)
	return AccessClaims{UserID: userID, Email: email}, nil
}

func (m *Manager) IssueTwoFactor(userID uint, remember bool) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatUint(uint64(userID), 10),
		"remember": remember,
		"purpose":  purposeTwoFactor,
		"iat":      now.Unix(),
		"exp":      now.Add(m.twoFactorTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) VerifyTwoFactor(token string) (TwoFactorSession, error) {
	claims, err := m.parse(token, purposeTwoFactor)
	if err != nil {
		return TwoFactorSession{}, err
	}
	userID, err := subjectID(claims)
	if err != nil {
		return TwoFactorSession{}, err
	}
	remember, _ := claims["remember"].(bool)
	return TwoFactorSession{UserID: userID, Remember: remember}, nil
}

func (m *Manager) parse(tokenString, purpose string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	// a two-factor token must never be accepted as an access token, and vice versa
	if p, _ := claims["purpose"].(string); p != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func subjectID(claims jwt.MapClaims) (uint, error) {
	sub, _ := claims["sub"].(string)
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}
