package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRandomDigits(t *testing.T) {
	s, err := GenerateRandomDigits(3)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{3}$`), s)

	_, err = GenerateRandomDigits(0)
	assert.Error(t, err)
}

func TestFormatAccountNumber(t *testing.T) {
	assert.Equal(t, "USD00000042517", FormatAccountNumber("USD", 42, "517"))
	assert.Equal(t, "BTC23456789001", FormatAccountNumber("BTC", 123456789, "001"))
}
