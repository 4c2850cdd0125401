package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionTransitions(t *testing.T) {
	assert.True(t, CanTransition(SessionRunning, SessionPaused))
	assert.True(t, CanTransition(SessionPaused, SessionRunning))
	assert.True(t, CanTransition(SessionPaused, SessionStopped))
	assert.True(t, CanTransition(SessionRunning, SessionCompleted))

	assert.False(t, CanTransition(SessionPaused, SessionCompleted))
	assert.False(t, CanTransition(SessionRunning, SessionRunning))
	for _, terminal := range []string{SessionStopped, SessionCompleted, SessionError} {
		assert.True(t, IsTerminalSession(terminal))
		for _, to := range []string{SessionRunning, SessionPaused, SessionStopped, SessionCompleted, SessionError} {
			assert.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
}

func TestAPIKeyExhausted(t *testing.T) {
	k := APIKey{CurrentMonthUsage: 10}
	assert.False(t, k.Exhausted())

	limit := int64(10)
	k.MonthlyLimit = &limit
	assert.True(t, k.Exhausted())

	k.CurrentMonthUsage = 9
	assert.False(t, k.Exhausted())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&User{FirstName: "Ada", LastName: "Lovelace"}).DisplayName())
	assert.Equal(t, "Ada", (&User{FirstName: "Ada"}).DisplayName())
	assert.Equal(t, "ada@example.com", (&User{Email: "ada@example.com"}).DisplayName())
}
