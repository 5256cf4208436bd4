package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	argon2Version = 19 // argon2.Version is 0x13 (19)
)

// Hash hashes a password using Argon2id and returns an encoded hash string
// tagged with CurrentVersion.
// Format:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>,ver=<scheme>$<salt_b64>$<hash_b64>
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}
	return c.hash(password)
}

// Rehash hashes an already-proven password with the current scheme.
// It skips the policy so credentials created under an older policy can
// still be upgraded; only empty input is rejected.
func (c Config) Rehash(password string) (string, error) {
	if password == "" {
		return "", ErrPasswordTooShort
	}
	return c.hash(password)
}

func (c Config) hash(password string) (string, error) {
	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		c.Params.Iterations,
		c.Params.MemoryKiB,
		c.Params.Parallelism,
		c.Params.KeyLength,
	)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d,ver=%d$%s$%s",
		argon2Version,
		c.Params.MemoryKiB,
		c.Params.Iterations,
		c.Params.Parallelism,
		CurrentVersion,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

// Verify checks whether password matches the given encoded hash.
// Returns (true, nil) for a match, (false, nil) for mismatch,
// and (false, ErrInvalidHash) for malformed/unsupported hashes.
func (c Config) Verify(encodedHash, password string) (bool, error) {
	h, err := parse(encodedHash)
	if err != nil {
		return false, err
	}

	switch h.info.Algorithm {
	case AlgorithmBcrypt:
		return c.verifyBcrypt(h, password)
	case AlgorithmArgon2id:
		return c.verifyArgon2id(h, password)
	default:
		return false, ErrInvalidHash
	}
}

func (c Config) verifyArgon2id(h parsedHash, password string) (bool, error) {
	// Anti-DoS boundary: refuse to verify if params exceed our configured maximums
	// by a large margin (attacker-controlled hash strings must not cause
	// pathological resource usage).
	if !withinReasonableBounds(h.info.Params, c.Params) {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey(
		[]byte(password),
		h.salt,
		h.info.Params.Iterations,
		h.info.Params.MemoryKiB,
		h.info.Params.Parallelism,
		uint32(len(h.digest)), // #nosec G115 -- digest length is bounded by parse().
	)

	return subtle.ConstantTimeCompare(key, h.digest) == 1, nil
}

func (c Config) verifyBcrypt(h parsedHash, password string) (bool, error) {
	maxCost := c.MaxBcryptCost
	if maxCost <= 0 {
		maxCost = DefaultConfig().MaxBcryptCost
	}
	if h.bcryptCost > maxCost {
		return false, ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(h.raw), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, ErrInvalidHash
	}
}

// NeedsRehash reports whether encodedHash should be replaced by a fresh Hash:
// either its scheme version is older than CurrentVersion or its Argon2id cost
// is below the configured params.
func (c Config) NeedsRehash(encodedHash string) (bool, error) {
	info, err := Inspect(encodedHash)
	if err != nil {
		return false, err
	}
	if info.Version < CurrentVersion {
		return true, nil
	}
	p := info.Params
	return p.MemoryKiB < c.Params.MemoryKiB ||
		p.Iterations < c.Params.Iterations ||
		p.KeyLength < c.Params.KeyLength, nil
}

func withinReasonableBounds(got Argon2idParams, limits Argon2idParams) bool {
	// Allow verifying hashes generated with older/smaller settings,
	// but reject wildly larger settings.
	if got.MemoryKiB > limits.MemoryKiB*2 {
		return false
	}
	if got.Iterations > limits.Iterations*2 {
		return false
	}
	if got.Parallelism > limits.Parallelism*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	if got.KeyLength < 16 || got.KeyLength > 128 {
		return false
	}
	return true
}
