package utils

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	long := strings.Repeat("abcdefghij", 30)
	tests := []struct {
		name     string
		input    string
		limit    int
		expected string
	}{
		{name: "empty", input: "", limit: 254, expected: ""},
		{name: "shorter than limit", input: "user table", limit: 254, expected: "user table"},
		{name: "exactly the limit", input: long[:254], limit: 254, expected: long[:254]},
		{name: "longer than limit", input: long, limit: 254, expected: long[:254]},
		{name: "multi-byte characters count once", input: "ééééé", limit: 3, expected: "ééé"},
		{name: "zero limit", input: "abc", limit: 0, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Truncate(tt.input, tt.limit)
			if result != tt.expected {
				t.Errorf("Truncate(%q, %d) = %q; want %q", tt.input, tt.limit, result, tt.expected)
			}
			if !strings.HasPrefix(tt.input, result) {
				t.Errorf("Truncate(%q, %d) = %q is not a prefix of the input", tt.input, tt.limit, result)
			}
			if utf8.RuneCountInString(result) > tt.limit && tt.limit >= 0 {
				t.Errorf("Truncate(%q, %d) returned %d characters", tt.input, tt.limit, utf8.RuneCountInString(result))
			}
		})
	}
}
