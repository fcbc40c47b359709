// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/amoroz/coursetrace/internal/config"
	"github.com/amoroz/coursetrace/internal/models"
)

// testDBSemaphore serializes test database lifecycles. Concurrent DuckDB
// CGO calls from parallel tests can hang under CI resource pressure, so
// only one test holds an open connection at a time.
var testDBSemaphore = make(chan struct{}, 1)

// setupTestDB creates an in-memory test database. The semaphore is held
// for the whole test lifecycle, not just creation; it is released via
// t.Cleanup when the test completes.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "512MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})
	return db
}

// appendOne stores a single raw record and returns it as scanned back,
// so tests get real ids and ingestion timestamps.
func appendOne(t *testing.T, db *DB, eventType, actor, body string, occurredAt time.Time) models.RawLogRecord {
	t.Helper()

	ctx := context.Background()
	inserted, err := db.AppendRawRecords(ctx, []models.NormalizedRecord{{
		EventType:  eventType,
		OccurredAt: occurredAt,
		ActorName:  actor,
		Body:       body,
	}})
	if err != nil {
		t.Fatalf("AppendRawRecords failed: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("AppendRawRecords inserted %d rows, want 1", inserted)
	}

	records, err := db.ScanRawRecords(ctx, nil, ScanCursor{}, 10000)
	if err != nil {
		t.Fatalf("ScanRawRecords failed: %v", err)
	}
	return records[len(records)-1]
}

func TestAppendRawRecordsDeduplicates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	occurred := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	batch := []models.NormalizedRecord{
		{EventType: "play_video", OccurredAt: occurred, ActorName: "alice", Body: "{}"},
		{EventType: "play_video", OccurredAt: occurred, ActorName: "bob", Body: "{}"},
	}

	inserted, err := db.AppendRawRecords(ctx, batch)
	if err != nil {
		t.Fatalf("AppendRawRecords failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("first append inserted %d rows, want 2", inserted)
	}

	// Replaying the same batch must collapse onto the stored rows.
	inserted, err = db.AppendRawRecords(ctx, batch)
	if err != nil {
		t.Fatalf("replayed AppendRawRecords failed: %v", err)
	}
	if inserted != 0 {
		t.Errorf("replayed append inserted %d rows, want 0", inserted)
	}

	count, err := db.CountRawRecordsSince(ctx, nil, ScanCursor{})
	if err != nil {
		t.Fatalf("CountRawRecordsSince failed: %v", err)
	}
	if count != 2 {
		t.Errorf("raw log holds %d rows, want 2", count)
	}
}

func TestAppendRawRecordsSameActorDifferentTime(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	inserted, err := db.AppendRawRecords(ctx, []models.NormalizedRecord{
		{EventType: "play_video", OccurredAt: base, ActorName: "alice", Body: "{}"},
		{EventType: "play_video", OccurredAt: base.Add(time.Second), ActorName: "alice", Body: "{}"},
	})
	if err != nil {
		t.Fatalf("AppendRawRecords failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("inserted %d rows, want 2 (occurred_at is part of the dedup key)", inserted)
	}
}

func TestScanRawRecordsOrderAndCursor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	occurred := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	var batch []models.NormalizedRecord
	for i := 0; i < 5; i++ {
		batch = append(batch, models.NormalizedRecord{
			EventType:  "play_video",
			OccurredAt: occurred.Add(time.Duration(i) * time.Minute),
			ActorName:  fmt.Sprintf("user-%d", i),
			Body:       "{}",
		})
	}
	if _, err := db.AppendRawRecords(ctx, batch); err != nil {
		t.Fatalf("AppendRawRecords failed: %v", err)
	}

	records, err := db.ScanRawRecords(ctx, nil, ScanCursor{}, 3)
	if err != nil {
		t.Fatalf("ScanRawRecords failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("scan returned %d records, want 3", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].ID <= records[i-1].ID {
			t.Errorf("scan order broken: id %d after id %d", records[i].ID, records[i-1].ID)
		}
	}

	// Resume from the last record: the cursor is exclusive, so the
	// remaining two records come back without overlap.
	last := records[len(records)-1]
	rest, err := db.ScanRawRecords(ctx, nil, ScanCursor{IngestedAt: last.IngestedAt, ID: last.ID}, 10)
	if err != nil {
		t.Fatalf("resumed ScanRawRecords failed: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("resumed scan returned %d records, want 2", len(rest))
	}
	if rest[0].ID <= last.ID {
		t.Errorf("resumed scan returned id %d at or before cursor id %d", rest[0].ID, last.ID)
	}
}

func TestScanRawRecordsEventTypeFilter(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	occurred := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	if _, err := db.AppendRawRecords(ctx, []models.NormalizedRecord{
		{EventType: "play_video", OccurredAt: occurred, ActorName: "alice", Body: "{}"},
		{EventType: "seq_goto", OccurredAt: occurred, ActorName: "alice", Body: "{}"},
		{EventType: "pause_video", OccurredAt: occurred, ActorName: "alice", Body: "{}"},
	}); err != nil {
		t.Fatalf("AppendRawRecords failed: %v", err)
	}

	records, err := db.ScanRawRecords(ctx, []string{"play_video", "pause_video"}, ScanCursor{}, 10)
	if err != nil {
		t.Fatalf("filtered ScanRawRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("filtered scan returned %d records, want 2", len(records))
	}
	for _, rec := range records {
		if rec.EventType == "seq_goto" {
			t.Errorf("filtered scan returned excluded event type %q", rec.EventType)
		}
	}
}

func TestWatermarkAdvanceAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	wm, err := db.GetWatermark(ctx, "enrollment")
	if err != nil {
		t.Fatalf("GetWatermark failed: %v", err)
	}
	if wm != nil {
		t.Fatalf("fresh store returned watermark %+v, want nil", wm)
	}

	rec := appendOne(t, db, "play_video", "alice", "{}", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	if err := db.AdvanceWatermark(ctx, "enrollment", &rec); err != nil {
		t.Fatalf("AdvanceWatermark failed: %v", err)
	}

	wm, err = db.GetWatermark(ctx, "enrollment")
	if err != nil {
		t.Fatalf("GetWatermark after advance failed: %v", err)
	}
	if wm == nil {
		t.Fatal("watermark missing after advance")
	}
	if wm.LastRecordID != rec.ID {
		t.Errorf("watermark last_record_id = %d, want %d", wm.LastRecordID, rec.ID)
	}

	// Advancing again overwrites in place: one row per pipeline.
	rec2 := appendOne(t, db, "play_video", "bob", "{}", time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC))
	if err := db.AdvanceWatermark(ctx, "enrollment", &rec2); err != nil {
		t.Fatalf("second AdvanceWatermark failed: %v", err)
	}
	wm, err = db.GetWatermark(ctx, "enrollment")
	if err != nil {
		t.Fatalf("GetWatermark after second advance failed: %v", err)
	}
	if wm.LastRecordID != rec2.ID {
		t.Errorf("watermark last_record_id = %d, want %d", wm.LastRecordID, rec2.ID)
	}
}

func TestMinWatermarkIngestedRequiresAllPipelines(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := appendOne(t, db, "play_video", "alice", "{}", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	if err := db.AdvanceWatermark(ctx, "enrollment", &rec); err != nil {
		t.Fatalf("AdvanceWatermark failed: %v", err)
	}

	// video_views has never checkpointed, so there is no safe cutoff.
	_, ok, err := db.MinWatermarkIngested(ctx, []string{"enrollment", "video_views"})
	if err != nil {
		t.Fatalf("MinWatermarkIngested failed: %v", err)
	}
	if ok {
		t.Error("MinWatermarkIngested reported a cutoff with an uncheckpointed pipeline")
	}

	if err := db.AdvanceWatermark(ctx, "video_views", &rec); err != nil {
		t.Fatalf("AdvanceWatermark failed: %v", err)
	}
	cutoff, ok, err := db.MinWatermarkIngested(ctx, []string{"enrollment", "video_views"})
	if err != nil {
		t.Fatalf("MinWatermarkIngested failed: %v", err)
	}
	if !ok {
		t.Fatal("MinWatermarkIngested found no cutoff after both pipelines checkpointed")
	}
	if cutoff.IsZero() {
		t.Error("cutoff is zero")
	}
}

func TestRetentionRangeAndDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	occurred := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	var batch []models.NormalizedRecord
	for i := 0; i < 4; i++ {
		batch = append(batch, models.NormalizedRecord{
			EventType:  "play_video",
			OccurredAt: occurred.Add(time.Duration(i) * time.Minute),
			ActorName:  fmt.Sprintf("user-%d", i),
			Body:       "{}",
		})
	}
	if _, err := db.AppendRawRecords(ctx, batch); err != nil {
		t.Fatalf("AppendRawRecords failed: %v", err)
	}

	// Nothing was ingested before the batch's ingestion time.
	records, err := db.ScanRawRecords(ctx, nil, ScanCursor{}, 10)
	if err != nil {
		t.Fatalf("ScanRawRecords failed: %v", err)
	}
	ingested := records[0].IngestedAt

	_, _, ok, err := db.RawIDRangeOlderThan(ctx, ingested)
	if err != nil {
		t.Fatalf("RawIDRangeOlderThan failed: %v", err)
	}
	if ok {
		t.Error("found rows older than the earliest ingestion time")
	}

	// A cutoff past the batch covers all four rows.
	cutoff := ingested.Add(time.Second)
	lo, hi, ok, err := db.RawIDRangeOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("RawIDRangeOlderThan failed: %v", err)
	}
	if !ok {
		t.Fatal("no deletable range found")
	}

	// Delete in two chunks; the second upper bound is exclusive.
	mid := lo + (hi-lo)/2 + 1
	first, err := db.DeleteRawIDRange(ctx, lo, mid, cutoff)
	if err != nil {
		t.Fatalf("DeleteRawIDRange failed: %v", err)
	}
	second, err := db.DeleteRawIDRange(ctx, mid, hi+1, cutoff)
	if err != nil {
		t.Fatalf("DeleteRawIDRange failed: %v", err)
	}
	if first+second != 4 {
		t.Errorf("deleted %d rows, want 4", first+second)
	}

	count, err := db.CountRawRecordsSince(ctx, nil, ScanCursor{})
	if err != nil {
		t.Fatalf("CountRawRecordsSince failed: %v", err)
	}
	if count != 0 {
		t.Errorf("raw log holds %d rows after sweep, want 0", count)
	}
}
