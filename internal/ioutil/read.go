package ioutil

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Snippet returns body as a trimmed string of at most limit bytes, for
// including provider responses in error messages and logs. A truncated
// snippet ends with a marker giving the number of bytes dropped.
func Snippet(body []byte, limit int) string {
	s := strings.TrimSpace(string(body))
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s...(%d more bytes)", s[:cut], len(s)-cut)
}
