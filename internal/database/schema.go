// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

/*
schema.go - Database Schema Management

Tables:
  - raw_log: append-only normalized tracking-log events, deduplicated on
    (event_type_hash, occurred_at, actor_name); id drives scan ordering
  - watermarks: one durable resume point per pipeline
  - enrollment_by_day: cumulative enrollment rollup per course/day
  - video_views_by_user / video_views_by_block / video_views_by_day
  - course_visits_by_day / last_course_visit
  - discussion_activity (fact) / discussion_activity_by_day (rollup)
  - student_steps: navigation transition facts

Member-ID sets use DuckDB native VARCHAR[] columns with list_contains /
list_append, replacing the comma-joined string column of earlier designs.

All columns are defined in the initial CREATE TABLE statements; there are
no incremental migrations.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates the sequences, tables, and indexes.
// DuckDB doesn't support multi-statement Exec, so statements run one by one.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range schemaStatements() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

func schemaStatements() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS raw_log_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS discussion_activity_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS student_steps_id_seq`,

		`CREATE TABLE IF NOT EXISTS raw_log (
			id BIGINT PRIMARY KEY DEFAULT nextval('raw_log_id_seq'),
			event_type_hash VARCHAR(64) NOT NULL,
			event_type TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			-- Empty string rather than NULL: NULLs compare distinct inside
			-- unique constraints, which would defeat the dedup key for
			-- events without an actor.
			actor_name TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			ingested_at TIMESTAMP NOT NULL,
			UNIQUE (event_type_hash, occurred_at, actor_name)
		)`,

		`CREATE TABLE IF NOT EXISTS watermarks (
			pipeline_id TEXT PRIMARY KEY,
			last_record_id BIGINT NOT NULL,
			last_ingested_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS enrollment_by_day (
			course TEXT NOT NULL,
			day DATE NOT NULL,
			total INTEGER NOT NULL DEFAULT 0,
			enrolled INTEGER NOT NULL DEFAULT 0,
			unenrolled INTEGER NOT NULL DEFAULT 0,
			last_updated TIMESTAMP NOT NULL,
			UNIQUE (course, day)
		)`,

		`CREATE TABLE IF NOT EXISTS video_views_by_user (
			course TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			block_id TEXT NOT NULL,
			viewed_seconds INTEGER NOT NULL DEFAULT 0,
			is_completed BOOLEAN NOT NULL DEFAULT false,
			UNIQUE (course, user_id, block_id)
		)`,

		`CREATE TABLE IF NOT EXISTS video_views_by_block (
			course TEXT NOT NULL,
			block_id TEXT NOT NULL,
			part_viewed INTEGER NOT NULL DEFAULT 0,
			full_viewed INTEGER NOT NULL DEFAULT 0,
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			UNIQUE (course, block_id)
		)`,

		`CREATE TABLE IF NOT EXISTS video_views_by_day (
			course TEXT NOT NULL,
			block_id TEXT NOT NULL,
			day DATE NOT NULL,
			total INTEGER NOT NULL DEFAULT 0,
			member_ids VARCHAR[] NOT NULL DEFAULT [],
			UNIQUE (course, block_id, day)
		)`,

		`CREATE TABLE IF NOT EXISTS course_visits_by_day (
			course TEXT NOT NULL,
			day DATE NOT NULL,
			total INTEGER NOT NULL DEFAULT 0,
			member_ids VARCHAR[] NOT NULL DEFAULT [],
			UNIQUE (course, day)
		)`,

		`CREATE TABLE IF NOT EXISTS last_course_visit (
			user_id BIGINT NOT NULL,
			course TEXT NOT NULL,
			last_seen_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, course)
		)`,

		`CREATE TABLE IF NOT EXISTS discussion_activity (
			id BIGINT PRIMARY KEY DEFAULT nextval('discussion_activity_id_seq'),
			event_type TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			course TEXT NOT NULL,
			category_id TEXT,
			commentable_id TEXT NOT NULL,
			discussion_id TEXT NOT NULL,
			thread_type TEXT,
			occurred_at TIMESTAMP NOT NULL,
			UNIQUE (event_type, user_id, course, commentable_id, discussion_id, occurred_at)
		)`,

		`CREATE TABLE IF NOT EXISTS discussion_activity_by_day (
			course TEXT NOT NULL,
			day DATE NOT NULL,
			total INTEGER NOT NULL DEFAULT 0,
			UNIQUE (course, day)
		)`,

		`CREATE TABLE IF NOT EXISTS student_steps (
			id BIGINT PRIMARY KEY DEFAULT nextval('student_steps_id_seq'),
			event_type TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			course TEXT NOT NULL,
			subsection_id TEXT NOT NULL,
			current_unit TEXT NOT NULL,
			target_unit TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, course, subsection_id, current_unit, target_unit, occurred_at)
		)`,

		// Scan ordering and retention range queries both hit these.
		`CREATE INDEX IF NOT EXISTS idx_raw_log_ingested ON raw_log (ingested_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_log_event_type ON raw_log (event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollment_course_day ON enrollment_by_day (course, day)`,
		`CREATE INDEX IF NOT EXISTS idx_discussion_day_course ON discussion_activity_by_day (course, day)`,
	}
}
