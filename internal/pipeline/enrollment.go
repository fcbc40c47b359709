// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/amoroz/coursetrace/internal/database"
	"github.com/amoroz/coursetrace/internal/keys"
	"github.com/amoroz/coursetrace/internal/models"
)

// EnrollmentEvent is one accepted enrollment state change.
type EnrollmentEvent struct {
	Course     string
	Day        time.Time
	IsEnrolled bool
}

// EnrollmentPipeline maintains the cumulative per-day enrollment rollup.
type EnrollmentPipeline struct {
	db *database.DB
}

// NewEnrollmentPipeline constructs the enrollment pipeline.
func NewEnrollmentPipeline(db *database.DB) *EnrollmentPipeline {
	return &EnrollmentPipeline{db: db}
}

// ID implements Pipeline.
func (p *EnrollmentPipeline) ID() string { return "enrollment" }

// SupportedEventTypes implements Pipeline.
func (p *EnrollmentPipeline) SupportedEventTypes() []string {
	return []string{EventEnrollActivated, EventEnrollDeactivated}
}

// Format implements Pipeline.
func (p *EnrollmentPipeline) Format(_ context.Context, record *models.RawLogRecord) (interface{}, error) {
	env, err := decodeEnvelope(record.Body)
	if err != nil {
		return nil, err
	}

	payload, err := nestedPayload(env)
	if err != nil {
		return nil, err
	}
	var body struct {
		CourseID string `json:"course_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, rejectf("malformed enrollment payload: %v", err)
	}
	if body.CourseID == "" {
		return nil, rejectf("enrollment event without course_id")
	}

	course, err := keys.ParseCourseKey(body.CourseID)
	if err != nil {
		return nil, rejectf("unresolvable course key %q", body.CourseID)
	}

	return &EnrollmentEvent{
		Course:     course.String(),
		Day:        models.Day(record.OccurredAt),
		IsEnrolled: record.EventType == EventEnrollActivated,
	}, nil
}

// Apply implements Pipeline.
//
// The rollup is cumulative, so a back-filled event for an earlier day
// must shift the total of every later day by the same net delta. Events
// for the same course/day in one chunk arrive in order, and the engine
// guarantees at most one writer per pipeline, so the read-modify-write
// here does not race.
func (p *EnrollmentPipeline) Apply(ctx context.Context, event interface{}) error {
	ev, ok := event.(*EnrollmentEvent)
	if !ok {
		return fmt.Errorf("enrollment pipeline got %T", event)
	}

	day, _, err := p.db.GetOrCreateEnrollmentDay(ctx, ev.Course, ev.Day)
	if err != nil {
		return err
	}

	if ev.IsEnrolled {
		day.Enrolled++
	} else {
		day.Unenrolled++
	}

	seed, _, err := p.db.LatestEnrollmentTotalBefore(ctx, ev.Course, ev.Day)
	if err != nil {
		return err
	}
	day.Total = seed + day.Enrolled - day.Unenrolled

	if err := p.db.UpdateEnrollmentDay(ctx, day); err != nil {
		return err
	}

	delta := 1
	if !ev.IsEnrolled {
		delta = -1
	}
	return p.db.ShiftEnrollmentTotalsAfter(ctx, ev.Course, ev.Day, delta)
}
