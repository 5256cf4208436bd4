package session

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config defines runtime configuration for session tokens.
//
// The signing secret is not part of Config; it is resolved once at startup
// (see security/token) and handed to NewHS256Codec.
type Config struct {
	// Issuer is the value set in the "iss" claim and required on verify.
	Issuer string

	// TTL is the session lifetime; exp = iat + TTL.
	TTL time.Duration

	// ClockSkew is the leeway applied to exp checks. Zero means strict.
	ClockSkew time.Duration
}

type sessionEnv struct {
	Issuer    string        `env:"WAYPOINT_AUTH_ISSUER"     envDefault:"waypoint"`
	TTL       time.Duration `env:"WAYPOINT_SESSION_TTL"     envDefault:"24h"`
	ClockSkew time.Duration `env:"WAYPOINT_AUTH_CLOCK_SKEW" envDefault:"0s"`
}

// DefaultConfig returns the configuration used when no env overrides exist.
func DefaultConfig() Config {
	return Config{
		Issuer:    "waypoint",
		TTL:       24 * time.Hour,
		ClockSkew: 0,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - WAYPOINT_AUTH_ISSUER
//   - WAYPOINT_SESSION_TTL
//   - WAYPOINT_AUTH_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	var raw sessionEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, ErrConfig
	}

	cfg := Config{
		Issuer:    raw.Issuer,
		TTL:       raw.TTL,
		ClockSkew: raw.ClockSkew,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants Issue relies on: exp must land strictly
// after iat even once truncated to whole seconds.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return ErrConfig
	}
	if c.TTL < time.Second {
		return ErrConfig
	}
	if c.ClockSkew < 0 || c.ClockSkew >= c.TTL {
		return ErrConfig
	}
	return nil
}
