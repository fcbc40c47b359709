// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

// Package config loads and validates the collector configuration.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (COURSETRACE_ prefix)
//   - Config file (config.yaml)
//   - Built-in defaults
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the collector process.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Processor ProcessorConfig `koanf:"processor"`
	Structure StructureConfig `koanf:"structure"`
	Ops       OpsConfig       `koanf:"ops"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig configures the DuckDB storage engine.
type DatabaseConfig struct {
	// Path is the DuckDB database file; ":memory:" for ephemeral storage.
	Path string `koanf:"path" validate:"required"`

	// MaxMemory caps DuckDB memory usage, e.g. "2GB".
	MaxMemory string `koanf:"max_memory"`

	// Threads limits DuckDB worker threads. 0 = runtime.NumCPU().
	Threads int `koanf:"threads" validate:"min=0"`
}

// ProcessorConfig configures the pipeline engine.
type ProcessorConfig struct {
	// Pipelines lists the pipeline IDs this worker runs. Two workers
	// sharing storage must be given disjoint sets; the engine assumes
	// at most one writer per pipeline.
	Pipelines []string `koanf:"pipelines" validate:"required,min=1"`

	// CycleDelay is the pause between processing cycles.
	CycleDelay time.Duration `koanf:"cycle_delay" validate:"min=1s"`

	// ChunkSize bounds how many raw records one scan returns.
	ChunkSize int `koanf:"chunk_size" validate:"min=1"`

	// Retention enables deletion of raw log records already processed
	// by every enabled pipeline.
	Retention bool `koanf:"retention"`

	// RetentionChunkSize bounds how many rows a single retention delete
	// touches, keeping each delete transaction short.
	RetentionChunkSize int `koanf:"retention_chunk_size" validate:"min=1"`
}

// StructureConfig configures the course-structure directory client used by
// the student-step pipeline.
type StructureConfig struct {
	// URL is the base URL of the course-structure service. Empty disables
	// the client; the student_step pipeline then rejects every event.
	URL string `koanf:"url" validate:"omitempty,url"`

	// Timeout bounds a single directory lookup.
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`

	// RequestsPerSecond rate-limits directory lookups. 0 = unlimited.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"min=0"`
}

// OpsConfig configures the operational HTTP endpoint (health, metrics).
type OpsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"omitempty,hostname_port"`
}

// LoggingConfig configures process logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// KnownPipelines are the pipeline IDs the collector can construct.
var KnownPipelines = []string{
	"enrollment",
	"video_views",
	"discussion",
	"course_activity",
	"student_step",
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "/data/coursetrace.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Processor: ProcessorConfig{
			Pipelines:          append([]string(nil), KnownPipelines...),
			CycleDelay:         5 * time.Minute,
			ChunkSize:          10000,
			Retention:          false,
			RetentionChunkSize: 50000,
		},
		Structure: StructureConfig{
			URL:               "",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 20,
		},
		Ops: OpsConfig{
			Enabled: true,
			Addr:    "0.0.0.0:9180",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for errors that must stop startup.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	known := make(map[string]bool, len(KnownPipelines))
	for _, id := range KnownPipelines {
		known[id] = true
	}
	for _, id := range c.Processor.Pipelines {
		if !known[id] {
			return fmt.Errorf("unknown pipeline id %q (known: %v)", id, KnownPipelines)
		}
	}

	if c.Ops.Enabled && c.Ops.Addr == "" {
		return fmt.Errorf("ops endpoint enabled but no address configured")
	}

	return nil
}
