package utils

import (
	"strings"
	"unicode/utf8"
)

// ToStringSlice keeps the string members of an untyped slice.
func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0)
	for _, v := range slice {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

// Scopes accepts the shapes a host may hand over for a scope list: a
// space or comma separated string, []string or []any.
func Scopes(v any) []string {
	switch s := v.(type) {
	case string:
		return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	case []string:
		return s
	case []any:
		return ToStringSlice(s)
	}
	return nil
}

// Truncate shortens s to at most max bytes without splitting a rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
