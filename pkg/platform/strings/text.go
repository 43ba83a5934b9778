// Package strings provides text helpers shared by the report parser and the
// evidence context assembler.
package strings

import (
	"strings"
	"unicode/utf8"
)

// TruncationMarker is appended to text cut by Truncate.
const TruncationMarker = " [truncated]"

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// Len counts characters (runes), which is the unit every text budget uses.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate cuts s to at most limit characters including the marker, never
// splitting a rune. It reports whether anything was cut.
//
// Example:
//
//	Truncate("abcdefghijklmnopqrstuvwxyz", 15)
//	// Returns: "abc [truncated]", true
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 {
		return "", s != ""
	}
	if Len(s) <= limit {
		return s, false
	}
	keep := limit - Len(TruncationMarker)
	if keep <= 0 {
		return string([]rune(s)[:limit]), true
	}
	return string([]rune(s)[:keep]) + TruncationMarker, true
}

// Indent prefixes every line of s with prefix.
func Indent(s, prefix string) string {
	if s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
