// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amoroz/coursetrace/internal/database"
	"github.com/amoroz/coursetrace/internal/keys"
	"github.com/amoroz/coursetrace/internal/models"
)

// CourseActivityEvent is one accepted course visit.
type CourseActivityEvent struct {
	Course     string
	UserID     int64
	OccurredAt time.Time
}

// CourseActivityPipeline tracks per-day distinct course visitors and each
// user's last visit. It consumes every event type: any event carrying a
// course and user in its context counts as a visit.
type CourseActivityPipeline struct {
	db *database.DB
}

// NewCourseActivityPipeline constructs the course activity pipeline.
func NewCourseActivityPipeline(db *database.DB) *CourseActivityPipeline {
	return &CourseActivityPipeline{db: db}
}

// ID implements Pipeline.
func (p *CourseActivityPipeline) ID() string { return "course_activity" }

// SupportedEventTypes implements Pipeline. nil means the scan is
// unrestricted.
func (p *CourseActivityPipeline) SupportedEventTypes() []string { return nil }

// Format implements Pipeline.
func (p *CourseActivityPipeline) Format(_ context.Context, record *models.RawLogRecord) (interface{}, error) {
	env, err := decodeEnvelope(record.Body)
	if err != nil {
		return nil, err
	}
	if env.Context.CourseID == "" || env.Context.UserID == 0 {
		return nil, rejectf("event without course_id or user_id in context")
	}

	course, err := keys.ParseCourseKey(env.Context.CourseID)
	if err != nil {
		return nil, rejectf("unresolvable course key %q", env.Context.CourseID)
	}

	return &CourseActivityEvent{
		Course:     course.String(),
		UserID:     int64(env.Context.UserID),
		OccurredAt: record.OccurredAt,
	}, nil
}

// Apply implements Pipeline.
func (p *CourseActivityPipeline) Apply(ctx context.Context, event interface{}) error {
	ev, ok := event.(*CourseActivityEvent)
	if !ok {
		return fmt.Errorf("course activity pipeline got %T", event)
	}

	if err := p.db.UpsertLastCourseVisit(ctx, ev.UserID, ev.Course, ev.OccurredAt); err != nil {
		return err
	}

	_, err := p.db.AddCourseVisitDayMember(ctx, ev.Course, models.Day(ev.OccurredAt),
		strconv.FormatInt(ev.UserID, 10))
	return err
}
