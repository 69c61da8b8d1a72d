package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBusyError(t *testing.T) {
	assert.False(t, isBusyError(nil))
	assert.False(t, isBusyError(errors.New("syntax error")))
	assert.True(t, isBusyError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isBusyError(errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")))
}

func TestWithBusyRetry(t *testing.T) {
	calls := 0
	err := withBusyRetry(func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	// non-transient failures pass through untouched
	boom := errors.New("boom")
	calls = 0
	err = withBusyRetry(func() error { calls++; return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	// persistent contention surfaces the retryable sentinel
	err = withBusyRetry(func() error { return errors.New("database is locked") })
	assert.ErrorIs(t, err, errStoreBusy)
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.False(t, isUniqueConstraintError(nil))
	assert.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: users.email")))
	assert.True(t, isUniqueConstraintError(errors.New(`duplicate key value violates unique constraint "idx_users_email"`)))
}
