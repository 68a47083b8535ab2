package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("user-1", "secret", time.Minute, "fx-ledger")
	require.NoError(t, err)

	claims, err := ParseAndValidateJWT(token, "secret", "fx-ledger")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)

	_, err = ParseAndValidateJWT(token, "other", "fx-ledger")
	assert.Error(t, err)

	_, err = ParseAndValidateJWT(token, "secret", "someone-else")
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestJWTExpired(t *testing.T) {
	token, err := GenerateJWT("user-1", "secret", -time.Minute, "")
	require.NoError(t, err)
	_, err = ParseAndValidateJWT(token, "secret", "")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
