package util

import (
	"strings"
	"unicode/utf8"
)

// SanitizeText drops NUL bytes, invalid UTF-8, replacement runes and control
// characters other than newline and tab. PDF and XLS readers emit all of these,
// and Postgres text columns reject NUL.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		ch, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case ch == utf8.RuneError:
		case ch == '\r':
			if i < len(s) && s[i] == '\n' {
				continue
			}
			b.WriteByte('\n')
		case ch == '\n' || ch == '\t':
			b.WriteRune(ch)
		case ch < 0x20 || ch == 0x7f:
		default:
			b.WriteRune(ch)
		}
	}
	return strings.TrimSpace(b.String())
}
