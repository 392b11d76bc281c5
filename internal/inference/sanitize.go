package inference

import (
	"strings"
	"unicode"
)

// DisplayText makes generated text safe to print on a terminal: invalid
// UTF-8 becomes U+FFFD and control characters other than newline and tab
// are dropped.
func DisplayText(text string) string {
	s := strings.ToValidUTF8(text, "�")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
