package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// GenerateRandomDigits returns n cryptographically random decimal digits.
func GenerateRandomDigits(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("n must be positive")
	}
	var sb strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to read random digit: %w", err)
		}
		sb.WriteString(v.String())
	}
	return sb.String(), nil
}

// FormatAccountNumber builds prefix + last 8 digits of seq + suffix.
func FormatAccountNumber(prefix string, seq int64, suffix string) string {
	if seq < 0 {
		seq = -seq
	}
	return fmt.Sprintf("%s%08d%s", prefix, seq%100_000_000, suffix)
}
