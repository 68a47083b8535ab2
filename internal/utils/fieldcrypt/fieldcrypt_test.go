package fieldcrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := New("0123456789abcdef-test-key")
	require.NoError(t, err)

	enc, err := c.Encrypt("request_ip", "203.0.113.7")
	require.NoError(t, err)
	assert.NotContains(t, enc, "203.0.113.7")

	again, err := c.Encrypt("request_ip", "203.0.113.7")
	require.NoError(t, err)
	assert.NotEqual(t, enc, again, "nonces must differ")

	plain, err := c.Decrypt("request_ip", enc)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", plain)

	_, err = c.Decrypt("user_agent", enc)
	assert.Error(t, err, "ciphertext is bound to its field")
}

func TestCipher_EmptyAndMalformed(t *testing.T) {
	c, err := New("0123456789abcdef-test-key")
	require.NoError(t, err)

	enc, err := c.Encrypt("f", "")
	require.NoError(t, err)
	assert.Empty(t, enc)

	_, err = c.Decrypt("f", "plaintext")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = New("short")
	assert.Error(t, err)
}

func TestCipher_WrongKey(t *testing.T) {
	a, err := New("0123456789abcdef-key-a")
	require.NoError(t, err)
	b, err := New("0123456789abcdef-key-b")
	require.NoError(t, err)

	enc, err := a.Encrypt("f", "secret")
	require.NoError(t, err)
	_, err = b.Decrypt("f", enc)
	assert.Error(t, err)
}
