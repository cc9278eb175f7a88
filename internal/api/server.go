// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes playback, resolution, casting and the media library
// over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/mediad/internal/api/middleware"
	"github.com/ManuGH/mediad/internal/cast"
	"github.com/ManuGH/mediad/internal/delivery"
	"github.com/ManuGH/mediad/internal/library"
	"github.com/ManuGH/mediad/internal/media/probe"
	"github.com/ManuGH/mediad/internal/media/reference"
)

// Player resolves and serves raw references.
type Player interface {
	Resolve(ctx context.Context, raw string) (delivery.Resolution, error)
	ServeReference(w http.ResponseWriter, r *http.Request, raw string)
}

// Prober inspects a normalized reference.
type Prober interface {
	Probe(ctx context.Context, ref reference.Reference) (*probe.Result, error)
}

// Caster owns the single cast slot.
type Caster interface {
	Start(ctx context.Context, path string) (cast.Session, error)
	Stop(ctx context.Context) error
	Status() (cast.Session, bool)
}

// Library is the watched-directory registry.
type Library interface {
	Add(ctx context.Context, dir string) error
	Remove(ctx context.Context, dir string) error
	Watches(ctx context.Context) ([]library.Watch, error)
	Items(ctx context.Context, root string) ([]library.Item, error)
}

// HealthHandler serves liveness and readiness.
type HealthHandler interface {
	ServeHealth(w http.ResponseWriter, r *http.Request)
	ServeReady(w http.ResponseWriter, r *http.Request)
}

// Config configures the router.
type Config struct {
	// TracingService names the server spans; empty disables tracing.
	TracingService string
	// RequestsPerMinute per client IP on /api routes; zero disables limiting.
	RequestsPerMinute int
	// ServeMetrics mounts /metrics on this router.
	ServeMetrics bool
	// Platform selects the path convention for references.
	Platform reference.Platform
}

// Deps are the components behind the routes. Nil components make their
// routes answer 503.
type Deps struct {
	Player  Player
	Prober  Prober
	Cast    Caster
	Library Library
	Health  HealthHandler
}

// Server holds the API handlers.
type Server struct {
	cfg  Config
	deps Deps
}

// New creates an API server.
func New(cfg Config, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

// Handler builds the router with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, r, http.StatusNotFound, "NOT_FOUND", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Head("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
		r.Head("/readyz", s.deps.Health.ServeReady)
	}
	if s.cfg.ServeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/media/*", s.handleMedia)
	r.Head("/media/*", s.handleMedia)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RequestsPerMinute > 0 {
			r.Use(middleware.APIRateLimit(s.cfg.RequestsPerMinute))
		}

		r.Get("/play", s.handlePlay)
		r.Head("/play", s.handlePlay)
		r.Get("/resolve", s.handleResolve)
		r.Get("/probe", s.handleProbe)

		r.Get("/cast", s.handleCastStatus)
		r.Post("/cast", s.handleCastStart)
		r.Delete("/cast", s.handleCastStop)

		r.Get("/library/watches", s.handleListWatches)
		r.Post("/library/watches", s.handleAddWatch)
		r.Delete("/library/watches", s.handleRemoveWatch)
		r.Get("/library/items", s.handleListItems)
	})

	return r
}

func unavailable(w http.ResponseWriter, r *http.Request, what string) {
	RespondError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", what+" is not enabled")
}
