package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager("test-secret", 60)

	token, err := m.GenerateToken("alice", "Alice", "alice@example.com")
	require.NoError(t, err)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "Alice", claims.DisplayName)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestManager_Expired(t *testing.T) {
	m := NewManager("test-secret", -60)
	token, err := m.GenerateToken("alice", "Alice", "")
	require.NoError(t, err)

	_, err = m.VerifyToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestManager_WrongSecret(t *testing.T) {
	token, err := NewManager("one", 60).GenerateToken("alice", "Alice", "")
	require.NoError(t, err)

	_, err = NewManager("two", 60).VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
