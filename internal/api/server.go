// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

// Package api implements the HTTP surface: the multipart call-upload
// endpoint, the health probe and the Prometheus scrape endpoint. Transport
// concerns live here; every upload decision is delegated to the ingest
// pipeline.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calldrop/calldrop/internal/config"
	"github.com/calldrop/calldrop/internal/database"
	"github.com/calldrop/calldrop/internal/ingest"
	"github.com/calldrop/calldrop/internal/middleware"
)

// Version is stamped at build time.
var Version = "dev"

// Server binds the ingest pipeline to HTTP handlers.
type Server struct {
	pipeline *ingest.Pipeline
	repo     database.Repository
	cfg      config.Config
}

// NewServer wires the HTTP layer.
func NewServer(pipeline *ingest.Pipeline, repo database.Repository, cfg config.Config) *Server {
	return &Server{pipeline: pipeline, repo: repo, cfg: cfg}
}

// Router assembles the middleware stack and routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.PrometheusMetrics)
	r.Use(chimw.Recoverer)

	r.Post("/api/call-upload", s.handleCallUpload)

	// Upload throttling is the pipeline's job; the probe endpoint gets its
	// own cheap per-IP limit so it cannot be used to spin the database.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Get("/api/health", s.handleHealth)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
