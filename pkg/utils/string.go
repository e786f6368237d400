package utils

import "unicode/utf8"

// Truncate shortens s to maxLen characters followed by "...". It never
// splits a multi-byte character.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
