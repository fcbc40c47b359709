// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package processor

import (
	"context"
	"fmt"

	"github.com/amoroz/coursetrace/internal/logging"
	"github.com/amoroz/coursetrace/internal/metrics"
)

// runRetention deletes raw log rows already checkpointed by every
// configured pipeline. The cutoff is the minimum watermark across them,
// so a pipeline that has never checkpointed suppresses the sweep
// entirely: records it has yet to read must survive.
func (p *Processor) runRetention(ctx context.Context) (int64, error) {
	ids := make([]string, 0, len(p.pipelines))
	for _, pl := range p.pipelines {
		ids = append(ids, pl.ID())
	}

	cutoff, ok, err := p.db.MinWatermarkIngested(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("resolve retention cutoff: %w", err)
	}
	if !ok {
		logging.Ctx(ctx).Debug().Msg("retention skipped, not all pipelines have checkpointed")
		return 0, nil
	}

	lo, hi, ok, err := p.db.RawIDRangeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("resolve retention id range: %w", err)
	}
	if !ok {
		return 0, nil
	}

	var total int64
	for lo <= hi {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		upper := lo + int64(p.cfg.RetentionChunkSize)
		if upper > hi+1 {
			upper = hi + 1
		}
		deleted, err := p.db.DeleteRawIDRange(ctx, lo, upper, cutoff)
		if err != nil {
			return total, fmt.Errorf("delete raw log range: %w", err)
		}
		total += deleted
		metrics.RetentionDeleted.Add(float64(deleted))
		lo = upper
	}

	if total > 0 {
		logging.Ctx(ctx).Info().
			Int64("deleted", total).
			Time("cutoff", cutoff).
			Msg("retention sweep complete")
	}
	return total, nil
}
