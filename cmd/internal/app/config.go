package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config contains the process-level runtime configuration.
// Component settings (password, session, auth, feed) load in their own packages.
type Config struct {
	HTTPAddr  string `env:"WAYPOINT_ADDR"       envDefault:"0.0.0.0:8080"`
	Env       string `env:"WAYPOINT_ENV"        envDefault:"development"`
	LogLevel  string `env:"WAYPOINT_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"WAYPOINT_LOG_FORMAT" envDefault:"json"`

	ReadHeaderTimeout time.Duration `env:"WAYPOINT_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"WAYPOINT_HTTP_READ_TIMEOUT"        envDefault:"15s"`
	WriteTimeout      time.Duration `env:"WAYPOINT_HTTP_WRITE_TIMEOUT"       envDefault:"15s"`
	IdleTimeout       time.Duration `env:"WAYPOINT_HTTP_IDLE_TIMEOUT"        envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"WAYPOINT_SHUTDOWN_TIMEOUT"         envDefault:"10s"`
	MaxHeaderBytes    int           `env:"WAYPOINT_HTTP_MAX_HEADER_BYTES"    envDefault:"1048576"`

	DatabaseURL string `env:"WAYPOINT_DATABASE_URL"`
	DBMaxConns  int32  `env:"WAYPOINT_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"WAYPOINT_DB_MIN_CONNS" envDefault:"0"`
	AutoMigrate bool   `env:"WAYPOINT_AUTO_MIGRATE" envDefault:"false"`

	DBHealthCheckPeriod time.Duration `env:"WAYPOINT_DB_HEALTH_CHECK_PERIOD" envDefault:"30s"`
	DBMaxConnLifetime   time.Duration `env:"WAYPOINT_DB_MAX_CONN_LIFETIME"   envDefault:"1h"`
	DBMaxConnIdleTime   time.Duration `env:"WAYPOINT_DB_MAX_CONN_IDLE_TIME"  envDefault:"15m"`
	DBConnectTimeout    time.Duration `env:"WAYPOINT_DB_CONNECT_TIMEOUT"     envDefault:"5s"`

	// If true, /readyz returns 503 unless a DB is configured and reachable.
	ReadinessRequireDB bool `env:"WAYPOINT_READINESS_REQUIRE_DB" envDefault:"false"`

	JWTSecret string `env:"WAYPOINT_JWT_SECRET"`
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	cfg, err := parseEnv[Config]()
	if err != nil {
		return Config{}, err
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Production reports whether the process runs with production policy.
func (c Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: WAYPOINT_ADDR is empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "pretty", "text":
	default:
		return fmt.Errorf("config: WAYPOINT_LOG_FORMAT must be json, pretty or text (got %q)", c.LogFormat)
	}
	if c.ReadHeaderTimeout <= 0 || c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 {
		return errors.New("config: HTTP timeouts must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("config: WAYPOINT_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.DBMaxConns < 0 || c.DBMinConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return errors.New("config: invalid DB pool bounds")
	}
	if c.DBHealthCheckPeriod <= 0 || c.DBMaxConnLifetime <= 0 || c.DBMaxConnIdleTime <= 0 || c.DBConnectTimeout <= 0 {
		return errors.New("config: DB pool durations must be positive")
	}
	if c.AutoMigrate && c.DatabaseURL == "" {
		return errors.New("config: WAYPOINT_AUTO_MIGRATE requires WAYPOINT_DATABASE_URL")
	}
	return nil
}
