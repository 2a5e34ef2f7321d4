package notify

import (
	"strings"
	"unicode/utf8"
)

// reserved lists every character Telegram MarkdownV2 treats as markup.
const reserved = "_*[]()~`>#+-=|{}.!\\"

// Escape prefixes every MarkdownV2 reserved character in s with a backslash.
func Escape(s string) string {
	if !strings.ContainsAny(s, reserved) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for _, r := range s {
		if strings.ContainsRune(reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
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
