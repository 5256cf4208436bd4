// Package app wires the waypoint server runtime: config, logging, storage,
// HTTP routes and the live feed.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"waypoint/cmd/identity"
	"waypoint/cmd/internal/auth/account"
	authapi "waypoint/cmd/internal/auth/api"
	"waypoint/cmd/internal/auth/session"
	"waypoint/cmd/internal/metrics"
	"waypoint/cmd/internal/places"
	"waypoint/cmd/internal/realtime"
	"waypoint/cmd/security/password"
)

// dbSchema is where the migrations put every table.
const dbSchema = "waypoint"

// AuditKeyPurpose labels the subkey derived from the session secret for
// audit fingerprints.
const AuditKeyPurpose = "audit-fp"

// Components holds the per-component settings loaded alongside Config.
type Components struct {
	Password password.Config
	Session  session.Config
	Auth     authapi.Config
	Feed     realtime.Config
}

// LoadComponents reads every component config from the environment.
func LoadComponents() (Components, error) {
	var (
		c   Components
		err error
	)
	if c.Password, err = password.FromEnv(); err != nil {
		return Components{}, err
	}
	if c.Session, err = session.LoadConfigFromEnv(); err != nil {
		return Components{}, err
	}
	if c.Auth, err = authapi.LoadConfigFromEnv(); err != nil {
		return Components{}, err
	}
	if c.Feed, err = realtime.LoadConfigFromEnv(); err != nil {
		return Components{}, err
	}
	return c, nil
}

// App is the waypoint server runtime. It owns the pool, the login limiter
// and the HTTP handler tree.
type App struct {
	cfg Config
	log *slog.Logger

	pool    *pgxpool.Pool
	limiter *authapi.LoginLimiter
	hub     *realtime.Hub
	handler http.Handler
}

// New constructs a fully wired App. Without a database URL it runs on
// in-memory stores.
func New(ctx context.Context, cfg Config, comp Components, log *slog.Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	secret, err := ResolveSessionSecret(cfg, log)
	if err != nil {
		return nil, err
	}
	codec, err := session.NewHS256Codec(comp.Session, secret)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.NewCollector(reg)

	a := &App{cfg: cfg, log: log}

	var (
		users      identity.Store
		placeStore places.Store
		auditor    account.Auditor
	)
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		users = identity.NewMemoryStore()
		placeStore = places.NewMemoryStore()
		auditor = authapi.NewLogAuditor(log, secret.Derive(AuditKeyPurpose))
	} else {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.pool = pool

		if cfg.AutoMigrate {
			if err := Migrate(ctx, pool, log); err != nil {
				pool.Close()
				return nil, err
			}
		}

		us, err := identity.NewPostgresStore(pool, identity.WithSchema(dbSchema))
		if err != nil {
			pool.Close()
			return nil, err
		}
		ps, err := places.NewPostgresStore(pool, places.WithSchema(dbSchema))
		if err != nil {
			pool.Close()
			return nil, err
		}
		users, placeStore = us, ps
		auditor = authapi.NewPGAuditor(log, pool, dbSchema, secret.Derive(AuditKeyPurpose))
		log.Info("db.enabled.postgres_store")
	}

	accounts, err := account.NewService(log, users, comp.Password, codec,
		account.WithRecorder(rec),
		account.WithAuditor(auditor),
	)
	if err != nil {
		a.closePool()
		return nil, err
	}

	authHandler, err := authapi.NewHandler(log, comp.Auth, accounts, authapi.WithRecorder(rec))
	if err != nil {
		a.closePool()
		return nil, err
	}
	a.limiter = authHandler.Limiter()

	a.hub = realtime.NewHub(log)
	placeHandler, err := places.NewHandler(log, placeStore, comp.Auth.MaxBodyBytes, places.WithPublisher(a.hub))
	if err != nil {
		a.closePool()
		return nil, err
	}

	a.handler = newRouter(routes{
		log:     log,
		rec:     rec,
		auth:    authHandler,
		gate:    authapi.NewGate(log, codec, rec),
		places:  placeHandler,
		live:    realtime.NewGateway(log, a.hub, comp.Feed),
		metrics: metrics.Handler(reg),
		ready:   a.ready,
	})
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until ctx is done or the server fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	srv.RegisterOnShutdown(a.hub.CloseAll)

	a.limiter.Start()
	defer a.limiter.Stop()
	defer a.closePool()

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "env", a.cfg.Env, "db_enabled", a.pool != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return fmt.Errorf("shutdown: %w", err)
	}

	a.log.Info("server.stopped", "feed_subscribers", a.hub.Len(), "feed_dropped", a.hub.Dropped())
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if a.pool == nil {
		if a.cfg.ReadinessRequireDB {
			return errors.New("db not configured")
		}
		return nil
	}
	return PingDB(ctx, a.pool, 2*time.Second)
}

func (a *App) closePool() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
