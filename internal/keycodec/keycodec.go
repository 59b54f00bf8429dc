// Package keycodec turns free-form business and topic names into storage-safe
// path segments.
package keycodec

import (
	"strings"
	"unicode/utf16"
)

// Sanitize lower-cases name and replaces every UTF-16 code unit outside
// [a-z0-9] with an underscore, so a rune above U+FFFF becomes two. Keys match
// those already written by the earlier service. The result is stable under
// repeated application.
func Sanitize(name string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		n := utf16.RuneLen(r)
		if n < 1 {
			n = 1
		}
		b.WriteString(strings.Repeat("_", n))
	}
	return b.String()
}

// SanitizePath applies Sanitize to every "/"-separated segment of path and
// drops empty segments, so "Client/ Coffee Shop//" becomes "client/_coffee_shop".
func SanitizePath(path string) string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, Sanitize(p))
	}
	return strings.Join(out, "/")
}
