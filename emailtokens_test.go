package main

import (
	"testing"
	"time"

	"kovoy/models"
	"kovoy/pkg/hashutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationTokenLifecycle(t *testing.T) {
	a, _ := newTestApp(t)
	user := createTestUser(t, a, "verify@example.com", "hunter2secret", false)

	raw, err := a.issueEmailToken(user.ID, models.EmailTokenVerification)
	require.NoError(t, err)

	status, userID, err := a.consumeEmailToken(raw, models.EmailTokenVerification)
	require.NoError(t, err)
	assert.Equal(t, tokenValid, status)
	assert.Equal(t, user.ID, userID)

	// verification rows survive consumption so a repeat click is
	// distinguishable from garbage
	status, _, err = a.consumeEmailToken(raw, models.EmailTokenVerification)
	require.NoError(t, err)
	assert.Equal(t, tokenUsed, status)
}

func TestResetTokenSingleUse(t *testing.T) {
	a, _ := newTestApp(t)
	user := createTestUser(t, a, "reset@example.com", "hunter2secret", true)

	raw, err := a.issueEmailToken(user.ID, models.EmailTokenReset)
	require.NoError(t, err)

	status, userID, err := a.consumeEmailToken(raw, models.EmailTokenReset)
	require.NoError(t, err)
	assert.Equal(t, tokenValid, status)
	assert.Equal(t, user.ID, userID)

	// reset rows are deleted on use; a second presentation looks like any
	// other unknown token
	status, _, err = a.consumeEmailToken(raw, models.EmailTokenReset)
	require.NoError(t, err)
	assert.Equal(t, tokenInvalid, status)
}

func TestEmailTokenExpired(t *testing.T) {
	a, _ := newTestApp(t)
	user := createTestUser(t, a, "stale@example.com", "hunter2secret", false)

	raw, err := a.issueEmailToken(user.ID, models.EmailTokenVerification)
	require.NoError(t, err)
	require.NoError(t, a.db.Model(&models.EmailToken{}).
		Where("token_hash = ?", hashutil.Token(raw)).
		Update("expires_at", time.Now().Add(-time.Second)).Error)

	status, _, err := a.consumeEmailToken(raw, models.EmailTokenVerification)
	require.NoError(t, err)
	assert.Equal(t, tokenExpired, status)
}

func TestEmailTokenUnknown(t *testing.T) {
	a, _ := newTestApp(t)

	status, _, err := a.consumeEmailToken("not-a-token", models.EmailTokenVerification)
	require.NoError(t, err)
	assert.Equal(t, tokenInvalid, status)
}

func TestEmailTokenPurposeIsolation(t *testing.T) {
	a, _ := newTestApp(t)
	user := createTestUser(t, a, "purpose@example.com", "hunter2secret", true)

	raw, err := a.issueEmailToken(user.ID, models.EmailTokenReset)
	require.NoError(t, err)

	// a reset token presented on the verification path is not honored
	status, _, err := a.consumeEmailToken(raw, models.EmailTokenVerification)
	require.NoError(t, err)
	assert.Equal(t, tokenInvalid, status)
}

func TestEmailTokenReissueInvalidatesPredecessor(t *testing.T) {
	a, _ := newTestApp(t)
	user := createTestUser(t, a, "reissue@example.com", "hunter2secret", false)

	first, err := a.issueEmailToken(user.ID, models.EmailTokenVerification)
	require.NoError(t, err)
	second, err := a.issueEmailToken(user.ID, models.EmailTokenVerification)
	require.NoError(t, err)

	status, _, err := a.consumeEmailToken(first, models.EmailTokenVerification)
	require.NoError(t, err)
	assert.Equal(t, tokenInvalid, status)

	status, _, err = a.consumeEmailToken(second, models.EmailTokenVerification)
	require.NoError(t, err)
	assert.Equal(t, tokenValid, status)
}
