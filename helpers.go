package storefront

import (
	"net/url"
	"path"
	"strings"
)

// Slugify converts s to a lowercase handle made of letters, digits,
// underscores and single dashes.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// NormalizeHandle slugifies a user-supplied handle and caps its length.
// The result may still be empty.
func NormalizeHandle(s string) string {
	h := Slugify(s)
	if len(h) > 255 {
		h = strings.TrimRight(h[:255], "-")
	}
	return h
}

// BuildURL joins a base URL with path segments.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	if len(pathSegments) > 0 {
		u.Path = path.Join("/", u.Path, path.Join(pathSegments...))
	}
	return u.String()
}
