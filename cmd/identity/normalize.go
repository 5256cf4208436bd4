package identity

import "strings"

// NormalizeUsername performs case-insensitive canonicalization.
// Only trim + lower-case for now.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsEmailIdentifier reports whether a login identifier should be looked up as an email.
// Usernames cannot contain '@'.
func IsEmailIdentifier(s string) bool {
	return strings.Contains(s, "@")
}
