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

// UpsertLastCourseVisit records when a user last touched a course. The
// stored timestamp only moves forward: an older replayed event leaves the
// row untouched.
func (db *DB) UpsertLastCourseVisit(ctx context.Context, userID int64, course string, seenAt time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO last_course_visit (user_id, course, last_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, course) DO UPDATE SET last_seen_at = excluded.last_seen_at
		WHERE excluded.last_seen_at > last_course_visit.last_seen_at`,
		userID, course, seenAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert last course visit: %w", err)
	}
	return nil
}

// GetLastCourseVisit returns one user's last-visit row, or nil.
func (db *DB) GetLastCourseVisit(ctx context.Context, userID int64, course string) (*models.LastCourseVisit, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := &models.LastCourseVisit{UserID: userID, Course: course}
	err := db.conn.QueryRowContext(ctx,
		`SELECT last_seen_at FROM last_course_visit WHERE user_id = ? AND course = ?`,
		userID, course,
	).Scan(&row.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last course visit: %w", err)
	}
	return row, nil
}

// AddCourseVisitDayMember records that a user visited a course on a given
// day. Same set semantics as the video day rollup: total tracks the
// member set's cardinality and replays are no-ops.
func (db *DB) AddCourseVisitDayMember(ctx context.Context, course string, day time.Time, memberID string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	day = models.Day(day)

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO course_visits_by_day (course, day, total, member_ids)
		VALUES (?, ?, 1, [?]) ON CONFLICT DO NOTHING`,
		course, day, memberID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert course visit day row: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	} else if affected > 0 {
		return true, nil
	}

	result, err = db.conn.ExecContext(ctx,
		`UPDATE course_visits_by_day
		SET member_ids = list_append(member_ids, ?), total = total + 1
		WHERE course = ? AND day = ? AND NOT list_contains(member_ids, ?)`,
		memberID, course, day, memberID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add course visit member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// GetCourseVisitsByDay returns the per-day visit row, or nil.
func (db *DB) GetCourseVisitsByDay(ctx context.Context, course string, day time.Time) (*models.CourseVisitsByDay, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := &models.CourseVisitsByDay{Course: course}
	var members string
	err := db.conn.QueryRowContext(ctx,
		`SELECT day, total, array_to_string(member_ids, ',')
		FROM course_visits_by_day WHERE course = ? AND day = ?`,
		course, models.Day(day),
	).Scan(&row.Day, &row.Total, &members)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course visit day row: %w", err)
	}
	if members != "" {
		row.MemberIDs = strings.Split(members, ",")
	}
	return row, nil
}
