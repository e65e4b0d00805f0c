package tgui

import "unicode/utf8"

const ellipsis = "…"

// TruncRunes shortens s to at most n runes, ending with "…" when cut.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + ellipsis
		}
		i++
	}
	return s
}
