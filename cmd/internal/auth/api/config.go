package authapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls auth HTTP behavior.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// LoginPerMinute and LoginBurst size the per-IP login token bucket.
	LoginPerMinute float64
	LoginBurst     int
	// LimiterIdleTTL evicts limiters for clients that went quiet.
	LimiterIdleTTL time.Duration
}

type authEnv struct {
	TrustProxy     bool          `env:"WAYPOINT_TRUST_PROXY"             envDefault:"false"`
	MaxBodyBytes   int64         `env:"WAYPOINT_AUTH_MAX_BODY_BYTES"     envDefault:"1048576"`
	LoginPerMinute float64       `env:"WAYPOINT_AUTH_LOGIN_PER_MINUTE"   envDefault:"10"`
	LoginBurst     int           `env:"WAYPOINT_AUTH_LOGIN_BURST"        envDefault:"5"`
	LimiterIdleTTL time.Duration `env:"WAYPOINT_AUTH_LIMITER_IDLE_TTL"   envDefault:"10m"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   1 << 20,
		LoginPerMinute: 10,
		LoginBurst:     5,
		LimiterIdleTTL: 10 * time.Minute,
	}
}

// LoadConfigFromEnv reads auth HTTP config from the environment.
func LoadConfigFromEnv() (Config, error) {
	var raw authEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg := Config(raw)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would disable protections by accident.
func (c Config) Validate() error {
	if c.MaxBodyBytes <= 0 {
		return errors.New("authapi: max body bytes must be positive")
	}
	if c.LoginPerMinute <= 0 || c.LoginBurst <= 0 {
		return errors.New("authapi: login rate and burst must be positive")
	}
	if c.LimiterIdleTTL < time.Second {
		return errors.New("authapi: limiter idle ttl must be at least 1s")
	}
	return nil
}
