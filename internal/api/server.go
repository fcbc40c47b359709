// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

// Package api serves the operational endpoints: liveness, readiness, and
// Prometheus metrics. The collector has no query API; derived tables are
// read directly by downstream dashboards.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amoroz/coursetrace/internal/config"
	"github.com/amoroz/coursetrace/internal/database"
	"github.com/amoroz/coursetrace/internal/logging"
)

// Server is the ops HTTP endpoint. It implements suture's Service
// interface.
type Server struct {
	cfg config.OpsConfig
	db  *database.DB
}

// NewServer builds the ops server.
func NewServer(cfg config.OpsConfig, db *database.DB) *Server {
	return &Server{cfg: cfg, db: db}
}

// Serve runs the HTTP listener until the context is canceled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logger().Info().Str("addr", s.cfg.Addr).Msg("ops server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// handleHealth reports process liveness only.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports readiness: the process is ready once storage
// answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		logging.Logger().Warn().Err(err).Msg("readiness probe failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Logger().Error().Err(err).Msg("failed to encode response")
	}
}

// String names the service in supervisor logs.
func (s *Server) String() string { return "ops-server" }
