package hashutil

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Token returns the hex sha256 digest used to store high-entropy secrets
// (refresh tokens, 2FA codes, email link tokens) at rest. The inputs are
// random values, so a fast digest is enough; lookup is by exact hash match.
func Token(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Password hashes a human-chosen password with bcrypt. A cost of 0 selects
// bcrypt.DefaultCost.
func Password(plain string, cost int) ([]byte, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(plain), cost)
}

// CheckPassword reports whether plain matches the stored bcrypt hash.
func CheckPassword(hash []byte, plain string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain)) == nil
}
