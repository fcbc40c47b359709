// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/amoroz/coursetrace/internal/config"
	"github.com/amoroz/coursetrace/internal/database"
	"github.com/amoroz/coursetrace/internal/models"
	"github.com/amoroz/coursetrace/internal/structure"
)

const (
	testCourse       = "course-v1:OpenU+CS101+2025_T1"
	testLegacyCourse = "OpenU/CS101/2025_T1"
)

// testDBSemaphore serializes test database lifecycles; concurrent DuckDB
// CGO calls from parallel tests can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := database.New(&config.DatabaseConfig{
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

// rawRecord builds a fully-populated record the way the scan returns it.
func rawRecord(eventType, body string, occurredAt time.Time) *models.RawLogRecord {
	return &models.RawLogRecord{
		ID:            1,
		EventTypeHash: models.EventTypeHash(eventType),
		EventType:     eventType,
		OccurredAt:    occurredAt,
		ActorName:     "alice",
		Body:          body,
		IngestedAt:    occurredAt,
	}
}

// formatApply runs one record through a pipeline end to end.
func formatApply(t *testing.T, p Pipeline, record *models.RawLogRecord) {
	t.Helper()
	ctx := context.Background()
	event, err := p.Format(ctx, record)
	if err != nil {
		t.Fatalf("Format(%s) failed: %v", record.EventType, err)
	}
	if err := p.Apply(ctx, event); err != nil {
		t.Fatalf("Apply(%s) failed: %v", record.EventType, err)
	}
}

// fakeDirectory serves a course tree from a map. Ids absent from the map
// miss; a non-nil err fails every lookup.
type fakeDirectory struct {
	items map[string]*structure.Item
	err   error
}

func (d *fakeDirectory) GetItem(_ context.Context, id string) (*structure.Item, error) {
	if d.err != nil {
		return nil, d.err
	}
	item, ok := d.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", structure.ErrItemNotFound, id)
	}
	return item, nil
}
