// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

// Package metrics defines the Prometheus instrumentation for the collector.
//
// The swallowed-failure counter deserves a note: a record whose Apply fails
// still advances the pipeline watermark, so its aggregation side effect is
// silently lost. That is a deliberate policy, and ApplyFailures is the
// operator's only signal that aggregation gaps are accumulating. Alert on it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsScanned counts raw log records returned by pipeline scans.
	RecordsScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_records_scanned_total",
			Help: "Total raw log records scanned, per pipeline",
		},
		[]string{"pipeline"},
	)

	// RecordsFormatted counts records that passed Format.
	RecordsFormatted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_records_formatted_total",
			Help: "Total raw log records accepted by Format, per pipeline",
		},
		[]string{"pipeline"},
	)

	// RecordsRejected counts records silently rejected by Format.
	RecordsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_records_rejected_total",
			Help: "Total raw log records rejected by Format, per pipeline",
		},
		[]string{"pipeline"},
	)

	// RecordsApplied counts records whose aggregation update landed.
	RecordsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_records_applied_total",
			Help: "Total records successfully applied to derived tables, per pipeline",
		},
		[]string{"pipeline"},
	)

	// ApplyFailures counts records whose Apply failed but whose position
	// was still checkpointed (swallowed failures).
	ApplyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_apply_failures_total",
			Help: "Total apply failures swallowed while advancing the watermark, per pipeline",
		},
		[]string{"pipeline"},
	)

	// CycleDuration observes the wall time of one full pipeline cycle.
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursetrace_cycle_duration_seconds",
			Help:    "Duration of one processing cycle, per pipeline",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8), // 10ms .. ~160s
		},
		[]string{"pipeline"},
	)

	// CycleErrors counts cycle-level failures (scan or checkpoint errors).
	CycleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_cycle_errors_total",
			Help: "Total cycle-level failures, per pipeline",
		},
		[]string{"pipeline"},
	)

	// RetentionDeleted counts raw log rows removed by the retention sweep.
	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursetrace_retention_deleted_total",
			Help: "Total raw log rows deleted by the retention sweep",
		},
	)

	// RawRecordsAppended counts rows actually inserted into the raw log.
	RawRecordsAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursetrace_raw_records_appended_total",
			Help: "Total raw log rows inserted (duplicates excluded)",
		},
	)

	// RawRecordsDeduped counts append attempts dropped by the dedup key.
	RawRecordsDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursetrace_raw_records_deduped_total",
			Help: "Total raw log append attempts ignored as duplicates",
		},
	)

	// StructureLookups counts course-structure directory lookups by outcome.
	StructureLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursetrace_structure_lookups_total",
			Help: "Total course-structure directory lookups by outcome",
		},
		[]string{"outcome"}, // "hit", "miss", "error"
	)

	// StructureBreakerState tracks the directory client circuit breaker.
	// 0 = closed, 1 = half-open, 2 = open.
	StructureBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coursetrace_structure_breaker_state",
			Help: "Course-structure client circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// WatermarkAge tracks how far each pipeline's checkpoint trails the
	// present, measured at the end of its cycle.
	WatermarkAge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coursetrace_watermark_age_seconds",
			Help: "Seconds between now and the last checkpointed ingestion time, per pipeline",
		},
		[]string{"pipeline"},
	)
)
