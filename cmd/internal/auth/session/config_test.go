package session

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("got %+v, want %+v", cfg, DefaultConfig())
	}
}

func TestLoadConfigFromEnv_Override(t *testing.T) {
	t.Setenv("WAYPOINT_AUTH_ISSUER", "waypoint-test")
	t.Setenv("WAYPOINT_SESSION_TTL", "504h")
	t.Setenv("WAYPOINT_AUTH_CLOCK_SKEW", "30s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Issuer != "waypoint-test" || cfg.TTL != 21*24*time.Hour || cfg.ClockSkew != 30*time.Second {
		t.Fatalf("override failed: %+v", cfg)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"negative ttl":   {"WAYPOINT_SESSION_TTL": "-5m"},
		"sub-second ttl": {"WAYPOINT_SESSION_TTL": "500ms"},
		"bad duration":   {"WAYPOINT_SESSION_TTL": "soon"},
		"skew over ttl":  {"WAYPOINT_SESSION_TTL": "1m", "WAYPOINT_AUTH_CLOCK_SKEW": "2m"},
		"negative skew":  {"WAYPOINT_AUTH_CLOCK_SKEW": "-1s"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := LoadConfigFromEnv(); err != ErrConfig {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg.Issuer = ""
	if err := cfg.Validate(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for empty issuer, got %v", err)
	}
}
