package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Monetary amounts are carried as int64 cents through every layer of the
// engine. They cross serialization boundaries as decimal strings so no
// consumer is tempted to round-trip them through floating point.

// CentsString serializes a cent amount losslessly.
func CentsString(cents int64) string {
	return strconv.FormatInt(cents, 10)
}

// ParseCents parses a decimal-string cent amount. Fractional or non-numeric
// input is rejected; this is the guard against callers smuggling floats in.
func ParseCents(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty amount")
	}
	cents, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not an integer cent value: %w", s, err)
	}
	return cents, nil
}
