package utils

import "unicode/utf8"

// Truncate returns the first n characters (runes, not bytes) of s.
// Strings that are already short enough are returned unchanged.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
