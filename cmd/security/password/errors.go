package password

import "errors"

// Public, stable errors for callers.
//
// ErrInvalidHash marks a stored hash that cannot be parsed. It is a data
// integrity failure and must not be reported as a wrong password.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrInvalidHash      = errors.New("invalid password hash")
)
