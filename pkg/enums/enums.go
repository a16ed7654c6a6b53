// Package enums holds the string-backed enumerations persisted in the
// database and carried on the wire.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

type stringEnum interface{ ~string }

func member[T stringEnum](all []T, v T) bool {
	return slices.Contains(all, v)
}

// parseExact matches raw input verbatim against the known values.
func parseExact[T stringEnum](all []T, kind, value string) (T, error) {
	if v := T(value); member(all, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}

// parseUpper trims and upper-cases raw input before matching.
func parseUpper[T stringEnum](all []T, kind, value string) (T, error) {
	if v := T(strings.ToUpper(strings.TrimSpace(value))); member(all, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
