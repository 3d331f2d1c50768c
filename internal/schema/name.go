package schema

import "strings"

// DeriveFieldName derives an internal field name from a display label:
// lowercase, runs of non-alphanumeric characters collapse to a single
// underscore, leading/trailing underscores trimmed.
func DeriveFieldName(label string) string {
	var b strings.Builder
	b.Grow(len(label))

	pendingSep := false
	for _, r := range strings.ToLower(label) {
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
