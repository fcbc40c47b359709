// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

// Package pipeline defines the polymorphic aggregation unit the engine
// drives, and its five concrete implementations: enrollment, video views,
// discussion, course activity, and student step.
//
// Each pipeline owns exactly its own derived tables. Format never writes
// state; Apply performs the aggregation update and must be
// idempotent under re-delivery of the same record, because a crash
// between Apply and the watermark write re-delivers the record on the
// next cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/amoroz/coursetrace/internal/models"
)

// ErrRejected marks a record that Format declined: malformed payload,
// missing required fields, unresolvable identifiers, or a semantically
// inapplicable event. Rejection is silent - the engine logs it at debug
// level and the watermark still advances past the record.
var ErrRejected = errors.New("record rejected")

// rejectf builds a rejection with context for the debug log.
func rejectf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}

// Pipeline is one aggregation unit over the raw log.
//
// The engine holds an explicit list of these, constructed at startup from
// the configured id list. There is no registry and no dynamic discovery.
type Pipeline interface {
	// ID is the stable checkpoint key. It never changes across versions;
	// renaming it would orphan the pipeline's watermark.
	ID() string

	// SupportedEventTypes restricts the raw log scan. nil means all types.
	SupportedEventTypes() []string

	// Format parses and validates one raw record into this pipeline's
	// typed event. Errors wrapping ErrRejected are silent rejections;
	// Format must not touch storage, though it may consult read-only
	// collaborators such as the structure directory.
	Format(ctx context.Context, record *models.RawLogRecord) (interface{}, error)

	// Apply performs the aggregation update for one formatted event.
	Apply(ctx context.Context, event interface{}) error
}
