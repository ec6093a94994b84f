package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("s3cret", time.Hour)
	tok, err := m.Generate(42, "alice")
	require.NoError(t, err)

	claims, err := m.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestTokenRejectsOtherSecret(t *testing.T) {
	tok, err := NewTokenManager("one", time.Hour).Generate(1, "bob")
	require.NoError(t, err)

	_, err = NewTokenManager("two", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestTokenExpired(t *testing.T) {
	m := NewTokenManager("s3cret", time.Hour)
	m.ttl = -time.Minute
	tok, err := m.Generate(1, "bob")
	require.NoError(t, err)

	_, err = m.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("", "hunter2"))
}
