package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const timeFormat = time.RFC3339Nano

// DefaultLimit and MaxLimit bound every listing.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// EncodeToken creates an opaque keyset cursor from the last row's timestamp and id.
func EncodeToken(at time.Time, id string) string {
	tokenStr := fmt.Sprintf("%s|%s", at.UTC().Format(timeFormat), id)
	return base64.RawURLEncoding.EncodeToString([]byte(tokenStr))
}

// DecodeToken parses a cursor produced by EncodeToken.
func DecodeToken(token string) (time.Time, string, error) {
	decodedBytes, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid pagination token format (base64 decode): %w", err)
	}
	parts := strings.SplitN(string(decodedBytes), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("invalid pagination token format (split)")
	}
	at, err := time.Parse(timeFormat, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid pagination token format (time parse): %w", err)
	}
	return at, parts[1], nil
}

// NormalizeLimit clamps a requested page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeMultiFieldToken creates a token with any number of string fields.
func EncodeMultiFieldToken(fields ...string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strings.Join(fields, "|")))
}

// DecodeMultiFieldToken decodes a token into its component fields.
func DecodeMultiFieldToken(token string) ([]string, error) {
	decodedBytes, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid pagination token format (base64 decode): %w", err)
	}
	return strings.Split(string(decodedBytes), "|"), nil
}
