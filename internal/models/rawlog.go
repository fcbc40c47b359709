// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

// Package models defines the data structures shared across the collector:
// raw log records, pipeline watermarks, and the derived analytics rows.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RawLogRecord is one normalized tracking-log event as stored in the raw
// log table. Records are immutable after insertion; only the retention
// sweep removes them.
//
// ID is a strictly increasing sequence used as the scan cursor. IngestedAt
// is assigned per append batch and is what watermarks compare against;
// OccurredAt comes from the event itself and may arrive out of order.
type RawLogRecord struct {
	ID            int64     `json:"id"`
	EventTypeHash string    `json:"event_type_hash"`
	EventType     string    `json:"event_type"`
	OccurredAt    time.Time `json:"occurred_at"`
	ActorName     string    `json:"actor_name,omitempty"`
	Body          string    `json:"body"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// NormalizedRecord is the producer-facing shape of a raw event before it
// has been assigned an ID and an ingestion timestamp.
type NormalizedRecord struct {
	EventType  string
	OccurredAt time.Time
	ActorName  string
	Body       string
}

// EventTypeHash returns the fixed-width digest of an event-type string.
// It is part of the raw log dedup key (hash, occurred_at, actor_name), so
// replayed log files collapse onto already-stored rows.
func EventTypeHash(eventType string) string {
	sum := sha256.Sum256([]byte(eventType))
	return hex.EncodeToString(sum[:])
}

// Watermark is the durable per-pipeline resume point. One row per
// pipeline, overwritten on each checkpoint. Owned exclusively by the
// engine; pipelines never write it.
type Watermark struct {
	PipelineID   string    `json:"pipeline_id"`
	LastRecordID int64     `json:"last_record_id"`
	LastIngested time.Time `json:"last_ingested_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
