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
	"strings"
	"time"

	"github.com/amoroz/coursetrace/internal/models"
)

// AddVideoViewDayMember records that a user started a video block on a
// given day. The member set is a native DuckDB list; total always equals
// its cardinality. Returns true when the user was newly added.
//
// The insert-then-guarded-update sequence is idempotent: replaying the
// same (course, block, day, user) leaves both the set and the total
// untouched.
func (db *DB) AddVideoViewDayMember(ctx context.Context, course, blockID string, day time.Time, memberID string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	day = models.Day(day)

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO video_views_by_day (course, block_id, day, total, member_ids)
		VALUES (?, ?, ?, 1, [?]) ON CONFLICT DO NOTHING`,
		course, blockID, day, memberID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert video day row: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	} else if affected > 0 {
		return true, nil
	}

	result, err = db.conn.ExecContext(ctx,
		`UPDATE video_views_by_day
		SET member_ids = list_append(member_ids, ?), total = total + 1
		WHERE course = ? AND block_id = ? AND day = ? AND NOT list_contains(member_ids, ?)`,
		memberID, course, blockID, day, memberID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add video day member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// GetVideoViewsByDay returns the per-day row for one course/block/day, or nil.
func (db *DB) GetVideoViewsByDay(ctx context.Context, course, blockID string, day time.Time) (*models.VideoViewsByDay, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := &models.VideoViewsByDay{Course: course, BlockID: blockID}
	var members string
	err := db.conn.QueryRowContext(ctx,
		`SELECT day, total, array_to_string(member_ids, ',')
		FROM video_views_by_day WHERE course = ? AND block_id = ? AND day = ?`,
		course, blockID, models.Day(day),
	).Scan(&row.Day, &row.Total, &members)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video day row: %w", err)
	}
	if members != "" {
		row.MemberIDs = strings.Split(members, ",")
	}
	return row, nil
}

// GetOrCreateVideoViewsByUser fetches one user's progress row for a video
// block, creating a zeroed row if none exists. created reports whether
// this call inserted the row - the signal the block rollup uses to count
// a first touch.
func (db *DB) GetOrCreateVideoViewsByUser(ctx context.Context, course string, userID int64, blockID string) (*models.VideoViewsByUser, bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO video_views_by_user (course, user_id, block_id, viewed_seconds, is_completed)
		VALUES (?, ?, ?, 0, false) ON CONFLICT DO NOTHING`,
		course, userID, blockID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure video user row: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	row := &models.VideoViewsByUser{Course: course, UserID: userID, BlockID: blockID}
	err = db.conn.QueryRowContext(ctx,
		`SELECT viewed_seconds, is_completed FROM video_views_by_user
		WHERE course = ? AND user_id = ? AND block_id = ?`,
		course, userID, blockID,
	).Scan(&row.ViewedSeconds, &row.IsCompleted)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get video user row: %w", err)
	}
	return row, affected > 0, nil
}

// UpdateVideoViewsByUser persists a user's watch progress.
func (db *DB) UpdateVideoViewsByUser(ctx context.Context, row *models.VideoViewsByUser) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE video_views_by_user SET viewed_seconds = ?, is_completed = ?
		WHERE course = ? AND user_id = ? AND block_id = ?`,
		row.ViewedSeconds, row.IsCompleted, row.Course, row.UserID, row.BlockID,
	)
	if err != nil {
		return fmt.Errorf("failed to update video user row: %w", err)
	}
	return nil
}

// EnsureVideoViewsByBlock creates the zeroed block rollup row if missing.
func (db *DB) EnsureVideoViewsByBlock(ctx context.Context, course, blockID string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO video_views_by_block (course, block_id, part_viewed, full_viewed, duration_seconds)
		VALUES (?, ?, 0, 0, 0) ON CONFLICT DO NOTHING`,
		course, blockID,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure video block row: %w", err)
	}
	return nil
}

// IncrementVideoBlockPartViews counts one more user who touched the block
// without completing it yet.
func (db *DB) IncrementVideoBlockPartViews(ctx context.Context, course, blockID string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE video_views_by_block SET part_viewed = part_viewed + 1
		WHERE course = ? AND block_id = ?`,
		course, blockID,
	)
	if err != nil {
		return fmt.Errorf("failed to increment block part views: %w", err)
	}
	return nil
}

// PromoteVideoBlockFullView migrates one user's contribution from partial
// to full when their per-user row completes, and records the video
// duration observed at completion.
func (db *DB) PromoteVideoBlockFullView(ctx context.Context, course, blockID string, durationSeconds int) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE video_views_by_block
		SET part_viewed = part_viewed - 1, full_viewed = full_viewed + 1, duration_seconds = ?
		WHERE course = ? AND block_id = ?`,
		durationSeconds, course, blockID,
	)
	if err != nil {
		return fmt.Errorf("failed to promote block full view: %w", err)
	}
	return nil
}

// GetVideoViewsByBlock returns the block rollup row, or nil.
func (db *DB) GetVideoViewsByBlock(ctx context.Context, course, blockID string) (*models.VideoViewsByBlock, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := &models.VideoViewsByBlock{Course: course, BlockID: blockID}
	err := db.conn.QueryRowContext(ctx,
		`SELECT part_viewed, full_viewed, duration_seconds FROM video_views_by_block
		WHERE course = ? AND block_id = ?`,
		course, blockID,
	).Scan(&row.PartViewed, &row.FullViewed, &row.DurationSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video block row: %w", err)
	}
	return row, nil
}

// GetVideoViewsByUser returns one user's progress row, or nil.
func (db *DB) GetVideoViewsByUser(ctx context.Context, course string, userID int64, blockID string) (*models.VideoViewsByUser, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := &models.VideoViewsByUser{Course: course, UserID: userID, BlockID: blockID}
	err := db.conn.QueryRowContext(ctx,
		`SELECT viewed_seconds, is_completed FROM video_views_by_user
		WHERE course = ? AND user_id = ? AND block_id = ?`,
		course, userID, blockID,
	).Scan(&row.ViewedSeconds, &row.IsCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video user row: %w", err)
	}
	return row, nil
}
