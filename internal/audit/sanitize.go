package audit

import "strings"

// Sanitize keeps ASCII letters, digits, underscore, space, '.' and '-' and drops
// everything else, including line breaks and control characters.
func Sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == ' ', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, text)
}

// SanitizeEntry returns a copy of entry with every free-text field sanitized.
// ID and Timestamp are generated locally and left untouched.
func SanitizeEntry(entry Entry) Entry {
	entry.Operation = Sanitize(entry.Operation)
	entry.User = Sanitize(entry.User)
	entry.Resource = Sanitize(entry.Resource)
	entry.Details = Sanitize(entry.Details)
	return entry
}
