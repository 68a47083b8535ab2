package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeToken(t *testing.T) {
	at := time.Date(2023, 5, 15, 14, 30, 45, 123456789, time.UTC)

	token := EncodeToken(at, "evt-42")
	assert.NotEmpty(t, token)

	gotAt, gotID, err := DecodeToken(token)
	require.NoError(t, err)
	assert.True(t, at.Equal(gotAt))
	assert.Equal(t, "evt-42", gotID)

	// Non-UTC input is normalized.
	local := time.Date(2024, 1, 1, 9, 0, 0, 0, time.FixedZone("X", 3600))
	gotAt, _, err = DecodeToken(EncodeToken(local, "a"))
	require.NoError(t, err)
	assert.True(t, local.Equal(gotAt))
}

func TestDecodeToken_Invalid(t *testing.T) {
	_, _, err := DecodeToken("%%%")
	assert.Error(t, err)

	_, _, err = DecodeToken(EncodeMultiFieldToken("only-one-field"))
	assert.Error(t, err)

	_, _, err = DecodeToken(EncodeMultiFieldToken("not-a-time", "id"))
	assert.Error(t, err)
}

func TestMultiFieldToken(t *testing.T) {
	token := EncodeMultiFieldToken("a", "b", "c")
	fields, err := DecodeMultiFieldToken(token)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, fields)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxLimit, NormalizeLimit(10000))
}
