// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package database

import (
	"context"
	"fmt"

	"github.com/amoroz/coursetrace/internal/models"
)

// InsertStudentStep stores one navigation transition fact with
// get-or-create semantics on its natural key. created reports whether a
// new row was stored.
func (db *DB) InsertStudentStep(ctx context.Context, step *models.StudentStep) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO student_steps (
			event_type, user_id, course, subsection_id, current_unit, target_unit, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		step.EventType, step.UserID, step.Course, step.SubsectionID,
		step.CurrentUnit, step.TargetUnit, step.OccurredAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert student step: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// CountStudentSteps returns the number of stored transitions for a course.
func (db *DB) CountStudentSteps(ctx context.Context, course string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM student_steps WHERE course = ?`, course,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count student steps: %w", err)
	}
	return count, nil
}
