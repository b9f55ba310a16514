package search

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Truncate returns s normalized to NFC and cut to at most max runes. The cut
// always lands on a rune boundary. max <= 0 disables truncation.
func Truncate(s string, max int) string {
	s = norm.NFC.String(s)
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
