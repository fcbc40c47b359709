// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amoroz/coursetrace/internal/metrics"
	"github.com/amoroz/coursetrace/internal/models"
)

// appendBatchSize bounds how many rows one multi-row INSERT carries.
const appendBatchSize = 1024

// AppendRawRecords inserts normalized records into the raw log with
// duplicate handling.
//
// Deduplication: INSERT ... ON CONFLICT DO NOTHING on the
// (event_type_hash, occurred_at, actor_name) unique key, so a producer
// replaying overlapping log files collapses onto already-stored rows
// without errors. Returns the count of rows actually inserted.
//
// Every row in one call shares a single ingested_at timestamp, which keeps
// ingestion time monotonic per batch - the property watermark comparisons
// rely on.
func (db *DB) AppendRawRecords(ctx context.Context, records []models.NormalizedRecord) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if len(records) == 0 {
		return 0, nil
	}

	ingestedAt := time.Now().UTC()
	inserted := 0

	for start := 0; start < len(records); start += appendBatchSize {
		end := start + appendBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]interface{}, 0, len(batch)*6)
		for _, rec := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?)")
			args = append(args,
				models.EventTypeHash(rec.EventType),
				rec.EventType,
				rec.OccurredAt.UTC(),
				rec.ActorName,
				rec.Body,
				ingestedAt,
			)
		}

		query := fmt.Sprintf(`INSERT INTO raw_log (
			event_type_hash, event_type, occurred_at, actor_name, body, ingested_at
		) VALUES %s ON CONFLICT DO NOTHING`, strings.Join(placeholders, ", "))

		result, err := db.conn.ExecContext(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("failed to append raw records: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to read affected rows: %w", err)
		}
		inserted += int(affected)
		metrics.RawRecordsAppended.Add(float64(affected))
		metrics.RawRecordsDeduped.Add(float64(len(batch) - int(affected)))
	}

	return inserted, nil
}

// ScanCursor is the exclusive lower bound of a raw log scan. Ties on
// ingested_at (whole append batches share one timestamp) are broken by id.
type ScanCursor struct {
	IngestedAt time.Time
	ID         int64
}

// CursorAfter returns the scan cursor positioned just past a watermark.
func CursorAfter(wm *models.Watermark) ScanCursor {
	if wm == nil {
		return ScanCursor{}
	}
	return ScanCursor{IngestedAt: wm.LastIngested, ID: wm.LastRecordID}
}

// ScanRawRecords returns up to limit raw log records strictly after the
// cursor, ordered by ingestion time then id. An empty eventTypes slice
// means all types.
func (db *DB) ScanRawRecords(ctx context.Context, eventTypes []string, cursor ScanCursor, limit int) ([]models.RawLogRecord, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var sb strings.Builder
	sb.WriteString(`SELECT id, event_type_hash, event_type, occurred_at, actor_name, body, ingested_at
		FROM raw_log
		WHERE (ingested_at > ? OR (ingested_at = ? AND id > ?))`)
	args := []interface{}{cursor.IngestedAt.UTC(), cursor.IngestedAt.UTC(), cursor.ID}

	if len(eventTypes) > 0 {
		sb.WriteString(" AND event_type IN (")
		sb.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(eventTypes)), ", "))
		sb.WriteString(")")
		for _, et := range eventTypes {
			args = append(args, et)
		}
	}

	sb.WriteString(" ORDER BY ingested_at, id LIMIT ?")
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan raw log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []models.RawLogRecord
	for rows.Next() {
		var rec models.RawLogRecord
		if err := rows.Scan(&rec.ID, &rec.EventTypeHash, &rec.EventType, &rec.OccurredAt,
			&rec.ActorName, &rec.Body, &rec.IngestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan raw log row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("raw log scan failed: %w", err)
	}

	return records, nil
}

// CountRawRecordsSince counts raw log records strictly after the cursor,
// optionally restricted to the given event types.
func (db *DB) CountRawRecordsSince(ctx context.Context, eventTypes []string, cursor ScanCursor) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var sb strings.Builder
	sb.WriteString(`SELECT COUNT(*) FROM raw_log
		WHERE (ingested_at > ? OR (ingested_at = ? AND id > ?))`)
	args := []interface{}{cursor.IngestedAt.UTC(), cursor.IngestedAt.UTC(), cursor.ID}

	if len(eventTypes) > 0 {
		sb.WriteString(" AND event_type IN (")
		sb.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(eventTypes)), ", "))
		sb.WriteString(")")
		for _, et := range eventTypes {
			args = append(args, et)
		}
	}

	var count int64
	if err := db.conn.QueryRowContext(ctx, sb.String(), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count raw log records: %w", err)
	}
	return count, nil
}

// RawIDRangeOlderThan returns the id range of raw log rows ingested
// strictly before the cutoff. ok is false when no such row exists.
// The retention sweep uses this to drive chunked deletes without loading
// full rows.
func (db *DB) RawIDRangeOlderThan(ctx context.Context, cutoff time.Time) (minID, maxID int64, ok bool, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var lo, hi *int64
	err = db.conn.QueryRowContext(ctx,
		`SELECT MIN(id), MAX(id) FROM raw_log WHERE ingested_at < ?`, cutoff.UTC(),
	).Scan(&lo, &hi)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to query raw log id range: %w", err)
	}
	if lo == nil || hi == nil {
		return 0, 0, false, nil
	}
	return *lo, *hi, true, nil
}

// DeleteRawIDRange deletes raw log rows with id in [lo, hi) that were
// ingested strictly before the cutoff. Each call is one short transaction;
// the sweep loops over small ranges to bound lock duration.
func (db *DB) DeleteRawIDRange(ctx context.Context, lo, hi int64, cutoff time.Time) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM raw_log WHERE id >= ? AND id < ? AND ingested_at < ?`,
		lo, hi, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete raw log range [%d, %d): %w", lo, hi, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}
