// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration does not validate: %v", err)
	}
	if len(cfg.Processor.Pipelines) != len(KnownPipelines) {
		t.Errorf("defaults enable %d pipelines, want all %d",
			len(cfg.Processor.Pipelines), len(KnownPipelines))
	}
}

func TestValidateRejectsUnknownPipeline(t *testing.T) {
	cfg := defaultConfig()
	cfg.Processor.Pipelines = []string{"enrollment", "sentiment"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("unknown pipeline id passed validation")
	}
	if !strings.Contains(err.Error(), "sentiment") {
		t.Errorf("error %q does not name the offending id", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no pipelines", func(c *Config) { c.Processor.Pipelines = nil }},
		{"zero chunk size", func(c *Config) { c.Processor.ChunkSize = 0 }},
		{"sub-second cycle delay", func(c *Config) { c.Processor.CycleDelay = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad structure url", func(c *Config) { c.Structure.URL = "not a url" }},
		{"ops enabled without addr", func(c *Config) { c.Ops.Addr = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid configuration passed validation")
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"COURSETRACE_DATABASE_PATH", "database.path"},
		{"COURSETRACE_DATABASE_MAX_MEMORY", "database.max_memory"},
		{"COURSETRACE_PROCESSOR_CYCLE_DELAY", "processor.cycle_delay"},
		{"COURSETRACE_PROCESSOR_RETENTION_CHUNK_SIZE", "processor.retention_chunk_size"},
		{"COURSETRACE_LOGGING_LEVEL", "logging.level"},
	}
	for _, tc := range tests {
		if got := envTransformFunc(tc.env); got != tc.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tc.env, got, tc.want)
		}
	}
}
