package authapi

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("got %+v, want %+v", cfg, DefaultConfig())
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("WAYPOINT_TRUST_PROXY", "true")
	t.Setenv("WAYPOINT_AUTH_LOGIN_PER_MINUTE", "30")
	t.Setenv("WAYPOINT_AUTH_LOGIN_BURST", "2")
	t.Setenv("WAYPOINT_AUTH_LIMITER_IDLE_TTL", "1m")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if !cfg.TrustProxy || cfg.LoginPerMinute != 30 || cfg.LoginBurst != 2 || cfg.LimiterIdleTTL != time.Minute {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	tests := map[string]string{
		"WAYPOINT_AUTH_LOGIN_BURST":      "0",
		"WAYPOINT_AUTH_MAX_BODY_BYTES":   "-1",
		"WAYPOINT_AUTH_LIMITER_IDLE_TTL": "10ms",
		"WAYPOINT_AUTH_LOGIN_PER_MINUTE": "fast",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := LoadConfigFromEnv(); err == nil {
				t.Fatalf("expected error for %s=%q", key, val)
			}
		})
	}
}
