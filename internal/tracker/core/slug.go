package core

import "strings"

// Slug derives a stable identifier from a provider asset id or display
// name: lowercase, with every run of non-alphanumeric characters collapsed
// to a single underscore. The function is idempotent, so ids loaded back
// from downstream systems normalize to themselves.
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSep := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}

	return b.String()
}
