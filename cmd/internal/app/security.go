package app

import (
	"errors"
	"log/slog"

	"waypoint/cmd/security/token"
)

// minSecretBytes is the production floor for the HS256 key.
const minSecretBytes = 32

// ResolveSessionSecret enforces the signing-key policy at startup.
//
// Production refuses to start without a strong secret. Elsewhere a missing
// secret falls back to the development default with a warning.
func ResolveSessionSecret(cfg Config, log *slog.Logger) (token.Secret, error) {
	secret, err := token.ResolveSecret(cfg.JWTSecret, cfg.Production(), minSecretBytes)
	switch {
	case errors.Is(err, token.ErrSecretMissing):
		return token.Secret{}, errors.New("security policy: WAYPOINT_ENV=production but WAYPOINT_JWT_SECRET is missing")
	case errors.Is(err, token.ErrSecretTooShort):
		return token.Secret{}, errors.New("security policy: WAYPOINT_JWT_SECRET is too short (min 32 bytes)")
	case err != nil:
		return token.Secret{}, err
	}

	if secret.IsDefault() && log != nil {
		log.Warn("security.jwt_secret.default", "env", cfg.Env)
	}
	return secret, nil
}
