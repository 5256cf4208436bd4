package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"waypoint/cmd/security/token"
)

// Claims is the verified content of a session token.
type Claims struct {
	SubjectID string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// Codec issues and verifies session tokens.
type Codec interface {
	Issue(subjectID string) (tok string, exp time.Time, err error)
	Verify(tok string) (Claims, error)
}

// wireClaims is the JSON payload: {"id", "exp", "iat", "iss"}.
type wireClaims struct {
	SubjectID string `json:"id"`
	jwt.RegisteredClaims
}

// HS256Codec is the Codec backed by HMAC-SHA256 JWTs.
type HS256Codec struct {
	issuer string
	ttl    time.Duration
	skew   time.Duration
	key    []byte
	now    func() time.Time
}

// Option customizes an HS256Codec.
type Option func(*HS256Codec)

// WithClock injects the time source used for iat/exp and for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *HS256Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewHS256Codec builds a Codec from validated config and a resolved secret.
func NewHS256Codec(cfg Config, secret token.Secret, opts ...Option) (*HS256Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if secret.Empty() {
		return nil, fmt.Errorf("%w: empty signing secret", ErrConfig)
	}

	c := &HS256Codec{
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		skew:   cfg.ClockSkew,
		key:    secret.Bytes(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for subjectID expiring TTL from now.
func (c *HS256Codec) Issue(subjectID string) (string, time.Time, error) {
	if subjectID == "" {
		return "", time.Time{}, errors.New("session: empty subject")
	}

	now := c.now()
	claims := wireClaims{
		SubjectID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: sign: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks encoding, signature, algorithm, issuer and expiry.
// Every failure is an InvalidTokenError wrapping ErrInvalidToken.
func (c *HS256Codec) Verify(tok string) (Claims, error) {
	var wc wireClaims

	// A fresh parser per call; options are cheap and keep no state across verifies.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
		jwt.WithLeeway(c.skew),
		jwt.WithTimeFunc(c.now),
	)

	_, err := parser.ParseWithClaims(tok, &wc, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return Claims{}, InvalidTokenError{Reason: classifyJWTError(err)}
	}
	if wc.SubjectID == "" || wc.ExpiresAt == nil {
		return Claims{}, InvalidTokenError{Reason: ReasonClaims}
	}

	out := Claims{
		SubjectID: wc.SubjectID,
		ExpiresAt: wc.ExpiresAt.Time,
		Issuer:    wc.Issuer,
	}
	if wc.IssuedAt != nil {
		out.IssuedAt = wc.IssuedAt.Time
	}
	return out, nil
}

func classifyJWTError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	default:
		return ReasonClaims
	}
}
