package account

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"waypoint/cmd/security/password"
)

const (
	usernameMinLen = 1
	usernameMaxLen = 20
	emailMaxLen    = 254
)

func validateUsername(fe fieldErrors, username string) {
	n := utf8.RuneCountInString(username)
	switch {
	case n < usernameMinLen:
		fe.add("username", "is required")
	case n > usernameMaxLen:
		fe.add("username", "must be at most 20 characters")
	case strings.ContainsRune(username, '@'):
		fe.add("username", "must not contain '@'")
	case strings.IndexFunc(username, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0:
		fe.add("username", "must not contain whitespace")
	}
}

func validateEmail(fe fieldErrors, email string) {
	if email == "" {
		fe.add("email", "is required")
		return
	}
	if len(email) > emailMaxLen {
		fe.add("email", "is too long")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		fe.add("email", "must be a valid email address")
	}
}

// passwordPolicyMessage turns a hasher policy error into a client message.
// ok is false when err is not a policy error.
func passwordPolicyMessage(err error) (msg string, ok bool) {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return "is too short", true
	case errors.Is(err, password.ErrPasswordTooLong):
		return "is too long", true
	case errors.Is(err, password.ErrWeakPassword):
		return "is too weak", true
	default:
		return "", false
	}
}
