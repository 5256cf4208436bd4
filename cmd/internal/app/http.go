package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	authapi "waypoint/cmd/internal/auth/api"
	"waypoint/cmd/internal/metrics"
	"waypoint/cmd/internal/places"
)

// routes is everything the router mounts.
type routes struct {
	log *slog.Logger
	rec metrics.Recorder

	auth   *authapi.Handler
	gate   *authapi.Gate
	places *places.Handler
	live   http.Handler

	metrics http.Handler

	// ready returns nil when the service can take traffic.
	ready func(ctx context.Context) error
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Set before mounting sub-routers so they inherit both.
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		authapi.WriteError(w, http.StatusNotFound, authapi.KindNotFound, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		authapi.WriteError(w, http.StatusNotImplemented, authapi.KindNotImplemented, nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if rt.ready != nil {
			if err := rt.ready(req.Context()); err != nil {
				rt.log.Info("readyz.not_ready", "err", err)
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		rt.auth.Mount(r, rt.gate)
		rt.places.Mount(r, rt.gate.RequireAuth, rt.live)
	})

	return WithSecurityHeaders(WithRequestLogging(r, rt.log, rt.rec))
}
