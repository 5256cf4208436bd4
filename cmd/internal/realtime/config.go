package realtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	maxFrameBytes = 16 << 10

	defaultRateEvents = 30
	defaultRateWindow = 10 * time.Second

	minSendQueueSize = 16
)

// Config tunes the live feed gateway.
type Config struct {
	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout  time.Duration
	SendQueueSize int

	// A connection is dropped after MaxPingFailures consecutive failed pings.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	MaxPingFailures   int

	RateEvents int
	RateWindow time.Duration
}

type feedEnv struct {
	OriginRequired    bool          `env:"WAYPOINT_WS_ORIGIN_REQUIRED"     envDefault:"true"`
	AllowedOrigins    []string      `env:"WAYPOINT_ALLOWED_ORIGINS"        envDefault:"http://localhost,http://127.0.0.1" envSeparator:","`
	WriteTimeout      time.Duration `env:"WAYPOINT_WS_WRITE_TIMEOUT"       envDefault:"5s"`
	SendQueueSize     int           `env:"WAYPOINT_WS_SEND_QUEUE"          envDefault:"64"`
	HeartbeatInterval time.Duration `env:"WAYPOINT_WS_HEARTBEAT_INTERVAL"  envDefault:"25s"`
	HeartbeatTimeout  time.Duration `env:"WAYPOINT_WS_HEARTBEAT_TIMEOUT"   envDefault:"5s"`
	MaxPingFailures   int           `env:"WAYPOINT_WS_MAX_PING_FAILURES"   envDefault:"3"`
	RateEvents        int           `env:"WAYPOINT_WS_RATE_EVENTS"         envDefault:"30"`
	RateWindow        time.Duration `env:"WAYPOINT_WS_RATE_WINDOW"         envDefault:"10s"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		OriginRequired:    true,
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		WriteTimeout:      5 * time.Second,
		SendQueueSize:     64,
		HeartbeatInterval: 25 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		MaxPingFailures:   3,
		RateEvents:        defaultRateEvents,
		RateWindow:        defaultRateWindow,
	}
}

// LoadConfigFromEnv reads feed settings from the environment.
func LoadConfigFromEnv() (Config, error) {
	var raw feedEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg := Config{
		OriginRequired:    raw.OriginRequired,
		AllowedOrigins:    trimCSV(raw.AllowedOrigins),
		WriteTimeout:      raw.WriteTimeout,
		SendQueueSize:     raw.SendQueueSize,
		HeartbeatInterval: raw.HeartbeatInterval,
		HeartbeatTimeout:  raw.HeartbeatTimeout,
		MaxPingFailures:   raw.MaxPingFailures,
		RateEvents:        raw.RateEvents,
		RateWindow:        raw.RateWindow,
	}
	return cfg.normalized(), nil
}

// normalized replaces unusable values with defaults.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SendQueueSize < minSendQueueSize {
		c.SendQueueSize = minSendQueueSize
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.MaxPingFailures <= 0 {
		c.MaxPingFailures = d.MaxPingFailures
	}
	if c.RateEvents <= 0 {
		c.RateEvents = d.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = d.RateWindow
	}
	return c
}

func trimCSV(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
