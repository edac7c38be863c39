package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// MaskValue returns the canonical redacted placeholder for non-empty values.
// Empty values are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskDestination keeps the last three digits of a mobile-money number so an
// operator can correlate a payout in logs without exposing the full number.
func MaskDestination(number string) slog.Attr {
	trimmed := strings.TrimSpace(number)
	if len(trimmed) <= 3 {
		return slog.String("destination", MaskValue(trimmed))
	}
	return slog.String("destination", strings.Repeat("*", len(trimmed)-3)+trimmed[len(trimmed)-3:])
}
