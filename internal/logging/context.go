// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// contextKey is a private type for context keys.
type contextKey string

// cycleIDKey carries the processing-cycle correlation ID so every log line
// produced while handling one cycle can be tied back to it.
const cycleIDKey contextKey = "cycle_id"

// NewCycleID creates a short unique ID for one processing cycle.
// The first 8 characters of a UUID are enough for log correlation.
func NewCycleID() string {
	return uuid.New().String()[:8]
}

// ContextWithCycleID returns a new context carrying the given cycle ID.
func ContextWithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleIDFromContext retrieves the cycle ID from context.
// Returns empty string if not present.
func CycleIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger that includes the cycle ID from the context, if any.
//
//	logging.Ctx(ctx).Info().Str("pipeline", id).Msg("chunk applied")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger()
	if id := CycleIDFromContext(ctx); id != "" {
		cycleLogger := l.With().Str("cycle_id", id).Logger()
		return &cycleLogger
	}
	return l
}
