package service

const (
	minSlugLen = 3
	maxSlugLen = 20
)

// IsValidTenantSlug reports whether segment is a well-formed tenant slug:
// 3 to 20 ASCII letters, digits or hyphens, not starting or ending with a
// hyphen. Three-character slugs may not contain a hyphen at all.
func IsValidTenantSlug(segment string) bool {
	n := len(segment)
	if n < minSlugLen || n > maxSlugLen {
		return false
	}
	if segment[0] == '-' || segment[n-1] == '-' {
		return false
	}
	for i := 0; i < n; i++ {
		c := segment[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-':
			if n == minSlugLen {
				return false
			}
		default:
			return false
		}
	}
	return true
}
