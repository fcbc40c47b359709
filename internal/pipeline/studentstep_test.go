// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/amoroz/coursetrace/internal/structure"
)

// testTree is a two-section course:
//
//	sec-1: sub-1a [unit-1a-1 unit-1a-2 unit-1a-3], sub-1b [unit-1b-1]
//	sec-2: sub-2a [unit-2a-1 unit-2a-2]
func testTree() *fakeDirectory {
	return &fakeDirectory{items: map[string]*structure.Item{
		"course-root": {ID: "course-root", Children: []string{"sec-1", "sec-2"}},
		"sec-1":       {ID: "sec-1", Parent: "course-root", Children: []string{"sub-1a", "sub-1b"}},
		"sec-2":       {ID: "sec-2", Parent: "course-root", Children: []string{"sub-2a"}},
		"sub-1a":      {ID: "sub-1a", Parent: "sec-1", Children: []string{"unit-1a-1", "unit-1a-2", "unit-1a-3"}},
		"sub-1b":      {ID: "sub-1b", Parent: "sec-1", Children: []string{"unit-1b-1"}},
		"sub-2a":      {ID: "sub-2a", Parent: "sec-2", Children: []string{"unit-2a-1", "unit-2a-2"}},
	}}
}

func stepBody(eventType, subsectionID string, old, newTab int) string {
	return fmt.Sprintf(`{
		"event_type": %q,
		"context": {"course_id": %q, "user_id": 17},
		"event": {"id": %q, "old": %d, "new": %d}
	}`, eventType, testCourse, subsectionID, old, newTab)
}

func formatStep(t *testing.T, p *StudentStepPipeline, eventType, body string) *StudentStepEvent {
	t.Helper()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	event, err := p.Format(context.Background(), rawRecord(eventType, body, at))
	if err != nil {
		t.Fatalf("Format(%s) failed: %v", eventType, err)
	}
	return event.(*StudentStepEvent)
}

func TestStudentStepTabSwitch(t *testing.T) {
	p := NewStudentStepPipeline(nil, testTree())

	ev := formatStep(t, p, EventSeqGoto, stepBody(EventSeqGoto, "sub-1a", 1, 3))
	if ev.CurrentUnit != "unit-1a-1" || ev.TargetUnit != "unit-1a-3" {
		t.Errorf("goto resolved %s -> %s, want unit-1a-1 -> unit-1a-3", ev.CurrentUnit, ev.TargetUnit)
	}

	// seq_next without an explicit new position steps one tab forward.
	ev = formatStep(t, p, EventSeqNext, stepBody(EventSeqNext, "sub-1a", 1, 0))
	if ev.CurrentUnit != "unit-1a-1" || ev.TargetUnit != "unit-1a-2" {
		t.Errorf("next resolved %s -> %s, want unit-1a-1 -> unit-1a-2", ev.CurrentUnit, ev.TargetUnit)
	}

	ev = formatStep(t, p, EventSeqPrev, stepBody(EventSeqPrev, "sub-1a", 2, 0))
	if ev.CurrentUnit != "unit-1a-2" || ev.TargetUnit != "unit-1a-1" {
		t.Errorf("prev resolved %s -> %s, want unit-1a-2 -> unit-1a-1", ev.CurrentUnit, ev.TargetUnit)
	}
}

func TestStudentStepBoundaryNext(t *testing.T) {
	p := NewStudentStepPipeline(nil, testTree())

	// Within a section: last unit of sub-1a to first unit of sub-1b.
	ev := formatStep(t, p, EventUISeqNext, stepBody(EventUISeqNext, "sub-1a", 0, 0))
	if ev.CurrentUnit != "unit-1a-3" || ev.TargetUnit != "unit-1b-1" {
		t.Errorf("boundary next resolved %s -> %s, want unit-1a-3 -> unit-1b-1",
			ev.CurrentUnit, ev.TargetUnit)
	}

	// Off the section edge: sub-1b is sec-1's last subsection, so the
	// walk crosses into sec-2's first subsection.
	ev = formatStep(t, p, EventUISeqNext, stepBody(EventUISeqNext, "sub-1b", 0, 0))
	if ev.CurrentUnit != "unit-1b-1" || ev.TargetUnit != "unit-2a-1" {
		t.Errorf("section-crossing next resolved %s -> %s, want unit-1b-1 -> unit-2a-1",
			ev.CurrentUnit, ev.TargetUnit)
	}
}

func TestStudentStepBoundaryPrev(t *testing.T) {
	p := NewStudentStepPipeline(nil, testTree())

	// sub-2a is sec-2's first subsection; previous crosses back into
	// sec-1's last subsection, landing on its last unit.
	ev := formatStep(t, p, EventUISeqPrev, stepBody(EventUISeqPrev, "sub-2a", 0, 0))
	if ev.CurrentUnit != "unit-2a-1" || ev.TargetUnit != "unit-1b-1" {
		t.Errorf("section-crossing prev resolved %s -> %s, want unit-2a-1 -> unit-1b-1",
			ev.CurrentUnit, ev.TargetUnit)
	}
}

func TestStudentStepRejections(t *testing.T) {
	p := NewStudentStepPipeline(nil, testTree())
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		eventType string
		body      string
	}{
		{"same tab", EventSeqGoto, stepBody(EventSeqGoto, "sub-1a", 2, 2)},
		{"tab out of range", EventSeqGoto, stepBody(EventSeqGoto, "sub-1a", 1, 9)},
		{"unknown subsection", EventSeqGoto, stepBody(EventSeqGoto, "sub-zz", 1, 2)},
		{"past the last unit of the course", EventUISeqNext, stepBody(EventUISeqNext, "sub-2a", 0, 0)},
		{"before the first unit of the course", EventUISeqPrev, stepBody(EventUISeqPrev, "sub-1a", 0, 0)},
		{"missing subsection id", EventSeqGoto, fmt.Sprintf(`{
			"event_type": "seq_goto",
			"context": {"course_id": %q, "user_id": 17},
			"event": {"old": 1, "new": 2}
		}`, testCourse)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Format(ctx, rawRecord(tc.eventType, tc.body, at))
			if !errors.Is(err, ErrRejected) {
				t.Errorf("Format returned %v, want ErrRejected", err)
			}
		})
	}
}

func TestStudentStepDirectoryOutageIsNotARejection(t *testing.T) {
	p := NewStudentStepPipeline(nil, &fakeDirectory{err: errors.New("connection refused")})
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	_, err := p.Format(ctx, rawRecord(EventSeqGoto, stepBody(EventSeqGoto, "sub-1a", 1, 2), at))
	if err == nil {
		t.Fatal("Format succeeded with an unavailable directory")
	}
	if errors.Is(err, ErrRejected) {
		t.Error("directory outage was classified as a rejection")
	}
}

func TestStudentStepApplyDeduplicates(t *testing.T) {
	db := setupTestDB(t)
	p := NewStudentStepPipeline(db, testTree())
	ctx := context.Background()

	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	record := rawRecord(EventSeqGoto, stepBody(EventSeqGoto, "sub-1a", 1, 2), at)
	formatApply(t, p, record)
	formatApply(t, p, record)

	count, err := db.CountStudentSteps(ctx, testCourse)
	if err != nil {
		t.Fatalf("CountStudentSteps failed: %v", err)
	}
	if count != 1 {
		t.Errorf("stored %d steps after replay, want 1", count)
	}
}
