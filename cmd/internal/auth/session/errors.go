package session

import (
	"errors"
)

var (
	// ErrInvalidToken is returned when a session token fails verification.
	// Callers must treat every cause the same way (reject).
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Reasons attached to ErrInvalidToken. They exist for logs and metrics only.
const (
	ReasonMalformed = "malformed"
	ReasonSignature = "signature"
	ReasonExpired   = "expired"
	ReasonClaims    = "claims"
)

// InvalidTokenError carries the verify failure reason. It unwraps to ErrInvalidToken.
type InvalidTokenError struct {
	Reason string
}

func (e InvalidTokenError) Error() string {
	if e.Reason == "" {
		return ErrInvalidToken.Error()
	}
	return ErrInvalidToken.Error() + ": " + e.Reason
}

func (e InvalidTokenError) Unwrap() error { return ErrInvalidToken }

// Reason extracts the failure reason from err, or "" if err is not a token failure.
func Reason(err error) string {
	var ite InvalidTokenError
	if errors.As(err, &ite) {
		return ite.Reason
	}
	return ""
}
