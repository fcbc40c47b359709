// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

// Package main is the entry point for the coursetrace collector.
//
// The collector ingests learning platform tracking-log events into an
// append-only raw log and incrementally aggregates them into per-course
// reporting tables: enrollment by day, video views, discussion activity,
// course visits, and student navigation steps.
//
// # Application Architecture
//
// The collector initializes components in the following order:
//
//  1. Configuration: settings from config file and environment (Koanf v2)
//  2. Database: DuckDB holding the raw log and all derived tables
//  3. Pipelines: one aggregation unit per configured pipeline id
//  4. Processor: the cyclic scan/format/apply/checkpoint engine
//  5. Ops server: /healthz, /readyz, and /metrics endpoints
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables with the COURSETRACE_ prefix,
// then the config file, then built-in defaults. The config file is taken
// from COURSETRACE_CONFIG or the first of config.yaml,
// /etc/coursetrace/config.yaml that exists.
//
// # Signal Handling
//
// The collector shuts down gracefully on SIGINT and SIGTERM: the current
// chunk finishes and checkpoints, then services stop under the
// supervisor's shutdown timeout.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/amoroz/coursetrace/internal/api"
	"github.com/amoroz/coursetrace/internal/config"
	"github.com/amoroz/coursetrace/internal/database"
	"github.com/amoroz/coursetrace/internal/logging"
	"github.com/amoroz/coursetrace/internal/pipeline"
	"github.com/amoroz/coursetrace/internal/processor"
	"github.com/amoroz/coursetrace/internal/structure"
	"github.com/amoroz/coursetrace/internal/supervisor"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Strs("pipelines", cfg.Processor.Pipelines).
		Str("db_path", cfg.Database.Path).
		Bool("retention", cfg.Processor.Retention).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	pipelines, err := buildPipelines(cfg, db)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build pipelines")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddWorker(processor.New(db, pipelines, cfg.Processor))
	if cfg.Ops.Enabled {
		tree.AddOps(api.NewServer(cfg.Ops, db))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Collector stopped gracefully")
}

// buildPipelines maps configured pipeline ids onto concrete pipelines.
// The list is explicit: an id the binary does not know is a configuration
// error, not a plugin lookup.
func buildPipelines(cfg *config.Config, db *database.DB) ([]pipeline.Pipeline, error) {
	var dir structure.Directory
	if cfg.Structure.URL != "" {
		dir = structure.NewClient(&cfg.Structure)
	}

	pipelines := make([]pipeline.Pipeline, 0, len(cfg.Processor.Pipelines))
	for _, id := range cfg.Processor.Pipelines {
		switch id {
		case "enrollment":
			pipelines = append(pipelines, pipeline.NewEnrollmentPipeline(db))
		case "video_views":
			pipelines = append(pipelines, pipeline.NewVideoViewsPipeline(db))
		case "discussion":
			pipelines = append(pipelines, pipeline.NewDiscussionPipeline(db))
		case "course_activity":
			pipelines = append(pipelines, pipeline.NewCourseActivityPipeline(db))
		case "student_step":
			if dir == nil {
				logging.Warn().Msg("student_step enabled without structure.url, navigation targets cannot resolve")
				pipelines = append(pipelines, pipeline.NewStudentStepPipeline(db, unavailableDirectory{}))
				continue
			}
			pipelines = append(pipelines, pipeline.NewStudentStepPipeline(db, dir))
		default:
			return nil, errors.New("unknown pipeline id: " + id)
		}
	}
	return pipelines, nil
}

// unavailableDirectory stands in when no structure service is configured;
// every lookup misses, so the student_step pipeline rejects every event
// instead of failing.
type unavailableDirectory struct{}

func (unavailableDirectory) GetItem(context.Context, string) (*structure.Item, error) {
	return nil, structure.ErrItemNotFound
}
