package service

import (
	"strings"
	"unicode"
)

// Slugify lower-cases name, turns whitespace runs into a single hyphen and
// drops everything outside [a-z0-9-]. Repeated and edge hyphens are removed,
// so the result is either empty or a clean slug.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsSpace(r) || r == '-':
			pendingHyphen = true
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		}
	}

	return b.String()
}
