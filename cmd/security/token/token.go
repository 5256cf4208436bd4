package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// DefaultDevSecret is the well-known signing secret used when none is
	// configured outside production. Tokens signed with it are forgeable.
	// #nosec G101 -- intentionally public development fallback.
	DefaultDevSecret = "secret"

	// MinSecretBytes is the minimum signing secret size enforced in production.
	MinSecretBytes = 32
)

// Secret is a resolved symmetric signing key. It is read-only after
// ResolveSecret and safe for concurrent use.
type Secret struct {
	key       []byte
	isDefault bool
}

// ResolveSecret turns the raw configured value into a signing secret.
//
// Behavior:
// - blank in production -> ErrSecretMissing
// - blank elsewhere -> DefaultDevSecret, with IsDefault reporting true
// - shorter than minBytes in production -> ErrSecretTooShort
func ResolveSecret(raw string, production bool, minBytes int) (Secret, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if production {
			return Secret{}, ErrSecretMissing
		}
		return Secret{key: []byte(DefaultDevSecret), isDefault: true}, nil
	}
	if production && minBytes > 0 && len(raw) < minBytes {
		return Secret{}, ErrSecretTooShort
	}
	return Secret{key: []byte(raw)}, nil
}

// NewSecret wraps key bytes directly. Intended for tests and tooling.
func NewSecret(key []byte) Secret {
	return Secret{key: append([]byte(nil), key...)}
}

// Bytes returns a copy of the key.
func (s Secret) Bytes() []byte {
	return append([]byte(nil), s.key...)
}

// Derive returns a subkey for purpose, HMAC-SHA256(key, purpose). Distinct
// purposes yield unrelated keys, so a leaked subkey does not expose the
// signing key.
func (s Secret) Derive(purpose string) []byte {
	m := hmac.New(sha256.New, s.key)
	_, _ = m.Write([]byte(purpose))
	return m.Sum(nil)
}

// IsDefault reports whether the secret is the development fallback.
func (s Secret) IsDefault() bool { return s.isDefault }

// Empty reports whether no key is held.
func (s Secret) Empty() bool { return len(s.key) == 0 }

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Fingerprint returns a stable, non-reversible identifier for audit storage.
// Input is trimmed and lowercased so "Alice" and "alice " collide.
// With an empty key it degrades to plain SHA-256.
func Fingerprint(identifier string, key []byte) string {
	norm := strings.ToLower(strings.TrimSpace(identifier))
	if len(key) == 0 {
		return HashSHA256Hex(norm)
	}
	return HashHMACSHA256Hex(norm, key)
}
