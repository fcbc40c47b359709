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

// GetWatermark returns the durable resume point for a pipeline, or nil if
// the pipeline has never checkpointed.
func (db *DB) GetWatermark(ctx context.Context, pipelineID string) (*models.Watermark, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	wm := &models.Watermark{PipelineID: pipelineID}
	err := db.conn.QueryRowContext(ctx,
		`SELECT last_record_id, last_ingested_at, updated_at FROM watermarks WHERE pipeline_id = ?`,
		pipelineID,
	).Scan(&wm.LastRecordID, &wm.LastIngested, &wm.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watermark for %s: %w", pipelineID, err)
	}
	return wm, nil
}

// AdvanceWatermark upserts the resume point for a pipeline. The engine
// calls this once per processed chunk with the last record it attempted,
// whether or not that record's aggregation landed.
func (db *DB) AdvanceWatermark(ctx context.Context, pipelineID string, record *models.RawLogRecord) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO watermarks (pipeline_id, last_record_id, last_ingested_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (pipeline_id) DO UPDATE SET
			last_record_id = excluded.last_record_id,
			last_ingested_at = excluded.last_ingested_at,
			updated_at = excluded.updated_at`,
		pipelineID, record.ID, record.IngestedAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to advance watermark for %s: %w", pipelineID, err)
	}
	return nil
}

// MinWatermarkIngested returns the oldest last_ingested_at across the
// given pipelines. ok is false when any of them has never checkpointed,
// in which case the retention sweep must not delete anything.
func (db *DB) MinWatermarkIngested(ctx context.Context, pipelineIDs []string) (time.Time, bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var min time.Time
	found := 0
	for _, id := range pipelineIDs {
		wm, err := db.GetWatermark(ctx, id)
		if err != nil {
			return time.Time{}, false, err
		}
		if wm == nil {
			return time.Time{}, false, nil
		}
		if found == 0 || wm.LastIngested.Before(min) {
			min = wm.LastIngested
		}
		found++
	}
	if found == 0 {
		return time.Time{}, false, nil
	}
	return min, true, nil
}
