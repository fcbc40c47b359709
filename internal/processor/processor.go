// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

// Package processor drives the aggregation pipelines over the raw log:
// scan a chunk past the pipeline's watermark, format and apply each
// record, checkpoint, repeat until drained, then sleep out the cycle
// delay. One Processor owns its configured pipelines exclusively; nothing
// here coordinates concurrent writers for the same pipeline id.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amoroz/coursetrace/internal/config"
	"github.com/amoroz/coursetrace/internal/database"
	"github.com/amoroz/coursetrace/internal/logging"
	"github.com/amoroz/coursetrace/internal/metrics"
	"github.com/amoroz/coursetrace/internal/models"
	"github.com/amoroz/coursetrace/internal/pipeline"
)

// Processor runs the configured pipelines against the raw log on a fixed
// cycle. It implements suture's Service interface.
type Processor struct {
	db        *database.DB
	pipelines []pipeline.Pipeline
	cfg       config.ProcessorConfig
}

// New builds a Processor over an explicit pipeline list.
func New(db *database.DB, pipelines []pipeline.Pipeline, cfg config.ProcessorConfig) *Processor {
	return &Processor{db: db, pipelines: pipelines, cfg: cfg}
}

// Serve runs processing cycles until the context is canceled. A failed
// cycle is logged and counted but never stops the loop; the next cycle
// resumes from the durable watermarks.
func (p *Processor) Serve(ctx context.Context) error {
	logging.Logger().Info().
		Int("pipelines", len(p.pipelines)).
		Dur("cycle_delay", p.cfg.CycleDelay).
		Int("chunk_size", p.cfg.ChunkSize).
		Bool("retention", p.cfg.Retention).
		Msg("processor started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Logger().Info().Msg("processor stopping")
			return ctx.Err()
		case <-timer.C:
		}

		p.ProcessCycle(ctx)

		timer.Reset(p.cfg.CycleDelay)
	}
}

// ProcessCycle runs every pipeline once and, when enabled, the retention
// sweep. Each pipeline gets its own error isolation: one pipeline's scan
// or checkpoint failure does not keep the others from running.
func (p *Processor) ProcessCycle(ctx context.Context) {
	ctx = logging.ContextWithCycleID(ctx, logging.NewCycleID())
	start := time.Now()

	var scanned, applied, rejected, failed int64
	for _, pl := range p.pipelines {
		stats, err := p.runPipeline(ctx, pl)
		scanned += stats.scanned
		applied += stats.applied
		rejected += stats.rejected
		failed += stats.failed
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			metrics.CycleErrors.WithLabelValues(pl.ID()).Inc()
			logging.Ctx(ctx).Error().Err(err).
				Str("pipeline", pl.ID()).
				Msg("pipeline cycle failed")
		}
	}

	var deleted int64
	if p.cfg.Retention {
		var err error
		deleted, err = p.runRetention(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			metrics.CycleErrors.WithLabelValues("retention").Inc()
			logging.Ctx(ctx).Error().Err(err).Msg("retention sweep failed")
		}
	}

	logging.Ctx(ctx).Info().
		Int64("scanned", scanned).
		Int64("applied", applied).
		Int64("rejected", rejected).
		Int64("failed", failed).
		Int64("retention_deleted", deleted).
		Dur("elapsed", time.Since(start)).
		Msg("cycle complete")
}

type pipelineStats struct {
	scanned  int64
	applied  int64
	rejected int64
	failed   int64
}

// runPipeline drains one pipeline: chunked scans from its watermark, one
// checkpoint per chunk. The watermark advances to the last record the
// chunk attempted, so a record whose Apply keeps failing is passed over
// rather than wedging the pipeline; ApplyFailures tracks how often.
func (p *Processor) runPipeline(ctx context.Context, pl pipeline.Pipeline) (pipelineStats, error) {
	var stats pipelineStats
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		metrics.CycleDuration.WithLabelValues(pl.ID()).Observe(elapsed.Seconds())
		logging.Ctx(ctx).Info().
			Str("pipeline", pl.ID()).
			Int64("scanned", stats.scanned).
			Int64("applied", stats.applied).
			Int64("rejected", stats.rejected).
			Int64("failed", stats.failed).
			Dur("elapsed", elapsed).
			Msg("pipeline drained")
	}()

	wm, err := p.db.GetWatermark(ctx, pl.ID())
	if err != nil {
		return stats, fmt.Errorf("load watermark: %w", err)
	}
	cursor := database.CursorAfter(wm)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		records, err := p.db.ScanRawRecords(ctx, pl.SupportedEventTypes(), cursor, p.cfg.ChunkSize)
		if err != nil {
			return stats, fmt.Errorf("scan raw log: %w", err)
		}
		if len(records) == 0 {
			return stats, nil
		}

		for i := range records {
			p.processRecord(ctx, pl, &records[i], &stats)
		}

		last := &records[len(records)-1]
		if err := p.db.AdvanceWatermark(ctx, pl.ID(), last); err != nil {
			return stats, fmt.Errorf("checkpoint at record %d: %w", last.ID, err)
		}
		cursor = database.ScanCursor{IngestedAt: last.IngestedAt, ID: last.ID}
		metrics.WatermarkAge.WithLabelValues(pl.ID()).Set(time.Since(last.IngestedAt).Seconds())

		if len(records) < p.cfg.ChunkSize {
			return stats, nil
		}
	}
}

// processRecord formats and applies one record. Failures are isolated:
// whatever happens here, the chunk's checkpoint still moves past the
// record.
func (p *Processor) processRecord(ctx context.Context, pl pipeline.Pipeline, record *models.RawLogRecord, stats *pipelineStats) {
	stats.scanned++
	metrics.RecordsScanned.WithLabelValues(pl.ID()).Inc()

	event, err := pl.Format(ctx, record)
	if err != nil {
		if errors.Is(err, pipeline.ErrRejected) {
			stats.rejected++
			metrics.RecordsRejected.WithLabelValues(pl.ID()).Inc()
			logging.Ctx(ctx).Debug().
				Str("pipeline", pl.ID()).
				Int64("record_id", record.ID).
				Str("event_type", record.EventType).
				Str("reason", err.Error()).
				Msg("record rejected")
			return
		}
		stats.failed++
		metrics.ApplyFailures.WithLabelValues(pl.ID()).Inc()
		logging.Ctx(ctx).Error().Err(err).
			Str("pipeline", pl.ID()).
			Int64("record_id", record.ID).
			Str("event_type", record.EventType).
			Msg("record format failed")
		return
	}
	stats.applied++ // provisional, walked back below on apply failure
	metrics.RecordsFormatted.WithLabelValues(pl.ID()).Inc()

	if err := pl.Apply(ctx, event); err != nil {
		stats.applied--
		stats.failed++
		metrics.ApplyFailures.WithLabelValues(pl.ID()).Inc()
		logging.Ctx(ctx).Error().Err(err).
			Str("pipeline", pl.ID()).
			Int64("record_id", record.ID).
			Str("event_type", record.EventType).
			Msg("record apply failed")
		return
	}
	metrics.RecordsApplied.WithLabelValues(pl.ID()).Inc()
}

// String names the service in supervisor logs.
func (p *Processor) String() string { return "processor" }
