// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amoroz/coursetrace/internal/models"
)

// InsertDiscussionActivity inserts one forum action fact. The full
// business key is unique, so re-delivered events collapse silently;
// created reports whether this call stored a new fact. Only a novel fact
// may bump the day rollup.
func (db *DB) InsertDiscussionActivity(ctx context.Context, fact *models.DiscussionActivity) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO discussion_activity (
			event_type, user_id, course, category_id, commentable_id,
			discussion_id, thread_type, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		fact.EventType, fact.UserID, fact.Course, fact.CategoryID,
		fact.CommentableID, fact.DiscussionID, fact.ThreadType, fact.OccurredAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert discussion activity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// IncrementDiscussionActivityByDay bumps the per-course, per-day rollup,
// creating the row at one on first touch.
func (db *DB) IncrementDiscussionActivityByDay(ctx context.Context, course string, day time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO discussion_activity_by_day (course, day, total)
		VALUES (?, ?, 1)
		ON CONFLICT (course, day) DO UPDATE SET total = total + 1`,
		course, models.Day(day),
	)
	if err != nil {
		return fmt.Errorf("failed to increment discussion day rollup: %w", err)
	}
	return nil
}

// GetDiscussionActivityByDay returns the rollup row, or nil.
func (db *DB) GetDiscussionActivityByDay(ctx context.Context, course string, day time.Time) (*models.DiscussionActivityByDay, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := &models.DiscussionActivityByDay{Course: course}
	err := db.conn.QueryRowContext(ctx,
		`SELECT day, total FROM discussion_activity_by_day WHERE course = ? AND day = ?`,
		course, models.Day(day),
	).Scan(&row.Day, &row.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discussion day rollup: %w", err)
	}
	return row, nil
}

// CountDiscussionActivity returns the number of stored facts for a course.
func (db *DB) CountDiscussionActivity(ctx context.Context, course string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM discussion_activity WHERE course = ?`, course,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count discussion activity: %w", err)
	}
	return count, nil
}
