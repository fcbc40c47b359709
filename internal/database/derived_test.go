// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package database

import (
	"context"
	"testing"
	"time"

	"github.com/amoroz/coursetrace/internal/models"
)

const testCourse = "course-v1:OpenU+CS101+2025_T1"

func TestGetOrCreateEnrollmentDay(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	row, created, err := db.GetOrCreateEnrollmentDay(ctx, testCourse, day)
	if err != nil {
		t.Fatalf("GetOrCreateEnrollmentDay failed: %v", err)
	}
	if !created {
		t.Error("first call did not create the row")
	}
	if row.Total != 0 || row.Enrolled != 0 || row.Unenrolled != 0 {
		t.Errorf("new row not zeroed: %+v", row)
	}

	row.Enrolled = 3
	row.Total = 3
	if err := db.UpdateEnrollmentDay(ctx, row); err != nil {
		t.Fatalf("UpdateEnrollmentDay failed: %v", err)
	}

	row, created, err = db.GetOrCreateEnrollmentDay(ctx, testCourse, day)
	if err != nil {
		t.Fatalf("second GetOrCreateEnrollmentDay failed: %v", err)
	}
	if created {
		t.Error("second call reported creation")
	}
	if row.Enrolled != 3 || row.Total != 3 {
		t.Errorf("row lost its counts: %+v", row)
	}
}

func TestShiftEnrollmentTotalsAfter(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	day1 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	day3 := day1.AddDate(0, 0, 2)
	for _, day := range []time.Time{day1, day2, day3} {
		row, _, err := db.GetOrCreateEnrollmentDay(ctx, testCourse, day)
		if err != nil {
			t.Fatalf("GetOrCreateEnrollmentDay failed: %v", err)
		}
		row.Total = 10
		if err := db.UpdateEnrollmentDay(ctx, row); err != nil {
			t.Fatalf("UpdateEnrollmentDay failed: %v", err)
		}
	}

	// Shift strictly after day1: day1 untouched, day2 and day3 move.
	if err := db.ShiftEnrollmentTotalsAfter(ctx, testCourse, day1, 1); err != nil {
		t.Fatalf("ShiftEnrollmentTotalsAfter failed: %v", err)
	}

	wantTotals := map[time.Time]int{day1: 10, day2: 11, day3: 11}
	for day, want := range wantTotals {
		row, err := db.GetEnrollmentDay(ctx, testCourse, day)
		if err != nil {
			t.Fatalf("GetEnrollmentDay failed: %v", err)
		}
		if row.Total != want {
			t.Errorf("total for %s = %d, want %d", day.Format("2006-01-02"), row.Total, want)
		}
	}

	// Seed lookup takes the nearest earlier day.
	seed, ok, err := db.LatestEnrollmentTotalBefore(ctx, testCourse, day3)
	if err != nil {
		t.Fatalf("LatestEnrollmentTotalBefore failed: %v", err)
	}
	if !ok || seed != 11 {
		t.Errorf("seed = %d ok=%v, want 11 true", seed, ok)
	}
	_, ok, err = db.LatestEnrollmentTotalBefore(ctx, testCourse, day1)
	if err != nil {
		t.Fatalf("LatestEnrollmentTotalBefore failed: %v", err)
	}
	if ok {
		t.Error("found a seed before the earliest day")
	}
}

func TestVideoViewDayMemberSet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	block := "block-v1:OpenU+CS101+2025_T1+type@video+block@intro"

	added, err := db.AddVideoViewDayMember(ctx, testCourse, block, day, "17")
	if err != nil {
		t.Fatalf("AddVideoViewDayMember failed: %v", err)
	}
	if !added {
		t.Error("first member not added")
	}

	// Same member again is a no-op, another member extends the set.
	added, err = db.AddVideoViewDayMember(ctx, testCourse, block, day, "17")
	if err != nil {
		t.Fatalf("repeated AddVideoViewDayMember failed: %v", err)
	}
	if added {
		t.Error("duplicate member reported as added")
	}
	if _, err := db.AddVideoViewDayMember(ctx, testCourse, block, day, "23"); err != nil {
		t.Fatalf("AddVideoViewDayMember failed: %v", err)
	}

	row, err := db.GetVideoViewsByDay(ctx, testCourse, block, day)
	if err != nil {
		t.Fatalf("GetVideoViewsByDay failed: %v", err)
	}
	if row.Total != 2 {
		t.Errorf("total = %d, want 2", row.Total)
	}
	if len(row.MemberIDs) != 2 {
		t.Errorf("member set %v, want 2 members", row.MemberIDs)
	}
}

func TestVideoBlockPartToFullMigration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	block := "block-v1:OpenU+CS101+2025_T1+type@video+block@intro"

	if err := db.EnsureVideoViewsByBlock(ctx, testCourse, block); err != nil {
		t.Fatalf("EnsureVideoViewsByBlock failed: %v", err)
	}
	if err := db.IncrementVideoBlockPartViews(ctx, testCourse, block); err != nil {
		t.Fatalf("IncrementVideoBlockPartViews failed: %v", err)
	}
	if err := db.IncrementVideoBlockPartViews(ctx, testCourse, block); err != nil {
		t.Fatalf("IncrementVideoBlockPartViews failed: %v", err)
	}

	// One of the two partial viewers finishes the video.
	if err := db.PromoteVideoBlockFullView(ctx, testCourse, block, 300); err != nil {
		t.Fatalf("PromoteVideoBlockFullView failed: %v", err)
	}

	row, err := db.GetVideoViewsByBlock(ctx, testCourse, block)
	if err != nil {
		t.Fatalf("GetVideoViewsByBlock failed: %v", err)
	}
	if row.PartViewed != 1 || row.FullViewed != 1 {
		t.Errorf("part=%d full=%d, want 1 and 1", row.PartViewed, row.FullViewed)
	}
	if row.DurationSeconds != 300 {
		t.Errorf("duration = %d, want 300", row.DurationSeconds)
	}
}

func TestUpsertLastCourseVisitForwardOnly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	newer := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	if err := db.UpsertLastCourseVisit(ctx, 17, testCourse, newer); err != nil {
		t.Fatalf("UpsertLastCourseVisit failed: %v", err)
	}
	// An older replayed event must not move the timestamp backwards.
	if err := db.UpsertLastCourseVisit(ctx, 17, testCourse, older); err != nil {
		t.Fatalf("replayed UpsertLastCourseVisit failed: %v", err)
	}

	row, err := db.GetLastCourseVisit(ctx, 17, testCourse)
	if err != nil {
		t.Fatalf("GetLastCourseVisit failed: %v", err)
	}
	if !row.LastSeenAt.Equal(newer) {
		t.Errorf("last_seen_at = %v, want %v", row.LastSeenAt, newer)
	}
}

func TestInsertDiscussionActivityDedup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	fact := &models.DiscussionActivity{
		EventType:     "edx.forum.thread.created",
		UserID:        17,
		Course:        testCourse,
		CommentableID: "general",
		DiscussionID:  "thread-1",
		OccurredAt:    time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	created, err := db.InsertDiscussionActivity(ctx, fact)
	if err != nil {
		t.Fatalf("InsertDiscussionActivity failed: %v", err)
	}
	if !created {
		t.Error("first insert reported no creation")
	}
	created, err = db.InsertDiscussionActivity(ctx, fact)
	if err != nil {
		t.Fatalf("replayed InsertDiscussionActivity failed: %v", err)
	}
	if created {
		t.Error("replayed insert reported creation")
	}

	count, err := db.CountDiscussionActivity(ctx, testCourse)
	if err != nil {
		t.Fatalf("CountDiscussionActivity failed: %v", err)
	}
	if count != 1 {
		t.Errorf("stored %d facts, want 1", count)
	}
}
