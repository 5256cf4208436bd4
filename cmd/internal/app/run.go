package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"
)

// ErrUsage reports an unknown subcommand.
var ErrUsage = errors.New("usage: waypoint [serve|migrate]")

// Run is the CLI entrypoint used by cmd/waypoint. The default subcommand is
// serve. It returns an error instead of calling os.Exit to keep defers effective.
func Run(args []string) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}
	if cmd != "serve" && cmd != "migrate" {
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "serve":
		comp, err := LoadComponents()
		if err != nil {
			return err
		}
		a, err := New(ctx, cfg, comp, log)
		if err != nil {
			return err
		}
		return a.Run(ctx)

	case "migrate":
		if cfg.DatabaseURL == "" {
			return errors.New("migrate: WAYPOINT_DATABASE_URL is required")
		}
		mctx, mcancel := context.WithTimeout(ctx, 2*time.Minute)
		defer mcancel()

		pool, err := NewDBPool(mctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		return Migrate(mctx, pool, log)
	}
	return nil
}
