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

// GetOrCreateEnrollmentDay fetches the enrollment rollup row for one
// course/day, creating a zeroed row if none exists. created reports
// whether this call inserted the row.
func (db *DB) GetOrCreateEnrollmentDay(ctx context.Context, course string, day time.Time) (*models.EnrollmentDay, bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	day = models.Day(day)

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO enrollment_by_day (course, day, total, enrolled, unenrolled, last_updated)
		VALUES (?, ?, 0, 0, 0, ?) ON CONFLICT DO NOTHING`,
		course, day, time.Now().UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure enrollment day: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	row, err := db.GetEnrollmentDay(ctx, course, day)
	if err != nil {
		return nil, false, err
	}
	if row == nil {
		return nil, false, fmt.Errorf("enrollment day vanished after insert for %s %s", course, day)
	}
	return row, affected > 0, nil
}

// GetEnrollmentDay returns the rollup row for one course/day, or nil.
func (db *DB) GetEnrollmentDay(ctx context.Context, course string, day time.Time) (*models.EnrollmentDay, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := &models.EnrollmentDay{Course: course}
	err := db.conn.QueryRowContext(ctx,
		`SELECT day, total, enrolled, unenrolled, last_updated
		FROM enrollment_by_day WHERE course = ? AND day = ?`,
		course, models.Day(day),
	).Scan(&row.Day, &row.Total, &row.Enrolled, &row.Unenrolled, &row.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment day: %w", err)
	}
	return row, nil
}

// LatestEnrollmentTotalBefore returns the cumulative total of the nearest
// day strictly before the given day for the same course. ok is false when
// no earlier day exists; the caller then seeds from zero.
func (db *DB) LatestEnrollmentTotalBefore(ctx context.Context, course string, day time.Time) (int, bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var total int
	err := db.conn.QueryRowContext(ctx,
		`SELECT total FROM enrollment_by_day
		WHERE course = ? AND day < ? ORDER BY day DESC LIMIT 1`,
		course, models.Day(day),
	).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get enrollment seed total: %w", err)
	}
	return total, true, nil
}

// UpdateEnrollmentDay persists recomputed counts for one course/day.
func (db *DB) UpdateEnrollmentDay(ctx context.Context, row *models.EnrollmentDay) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE enrollment_by_day
		SET total = ?, enrolled = ?, unenrolled = ?, last_updated = ?
		WHERE course = ? AND day = ?`,
		row.Total, row.Enrolled, row.Unenrolled, time.Now().UTC(),
		row.Course, models.Day(row.Day),
	)
	if err != nil {
		return fmt.Errorf("failed to update enrollment day: %w", err)
	}
	return nil
}

// ShiftEnrollmentTotalsAfter applies a net delta to the cumulative total
// of every day strictly after the given day for the same course. This is
// the back-fill propagation step: a replayed event for an earlier day
// shifts everything downstream of it.
func (db *DB) ShiftEnrollmentTotalsAfter(ctx context.Context, course string, day time.Time, delta int) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE enrollment_by_day SET total = total + ?, last_updated = ?
		WHERE course = ? AND day > ?`,
		delta, time.Now().UTC(), course, models.Day(day),
	)
	if err != nil {
		return fmt.Errorf("failed to shift enrollment totals: %w", err)
	}
	return nil
}
