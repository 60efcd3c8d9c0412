// Package statusapi serves the backend's health and counters over HTTP.
package statusapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"metatiled/internal/pkg/logger"
	"metatiled/internal/pkg/middleware"
	"metatiled/internal/worker"
)

// StatsSource reports protocol server counters.
type StatsSource interface {
	Stats() worker.Stats
}

// Check tests one dependency; a nil error means healthy.
type Check func(ctx context.Context) error

type Deps struct {
	Name   string
	Stats  StatsSource
	Checks map[string]Check
	Log    *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("statusapi")

	h := &Handler{
		name:   d.Name,
		stats:  d.Stats,
		checks: d.Checks,
		log:    log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	return r
}

// NewServer returns an HTTP server for the router with the timeouts the
// backend uses.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}
