// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/amoroz/coursetrace/internal/database"
	"github.com/amoroz/coursetrace/internal/keys"
	"github.com/amoroz/coursetrace/internal/models"
)

// VideoEvent is one accepted video interaction.
type VideoEvent struct {
	EventType     string
	Course        string
	UserID        int64
	BlockID       string
	ViewedSeconds int
	Completed     bool
	Day           time.Time
}

// VideoViewsPipeline maintains the three video rollups: per-user progress,
// per-block completion counters, and per-day distinct viewers.
type VideoViewsPipeline struct {
	db *database.DB
}

// NewVideoViewsPipeline constructs the video views pipeline.
func NewVideoViewsPipeline(db *database.DB) *VideoViewsPipeline {
	return &VideoViewsPipeline{db: db}
}

// ID implements Pipeline.
func (p *VideoViewsPipeline) ID() string { return "video_views" }

// SupportedEventTypes implements Pipeline.
func (p *VideoViewsPipeline) SupportedEventTypes() []string {
	return []string{EventVideoPlay, EventVideoPause, EventVideoStop}
}

// Format implements Pipeline.
func (p *VideoViewsPipeline) Format(_ context.Context, record *models.RawLogRecord) (interface{}, error) {
	env, err := decodeEnvelope(record.Body)
	if err != nil {
		return nil, err
	}
	if env.Context.CourseID == "" || env.Context.UserID == 0 {
		return nil, rejectf("video event without course_id or user_id")
	}

	course, err := keys.ParseCourseKey(env.Context.CourseID)
	if err != nil {
		return nil, rejectf("unresolvable course key %q", env.Context.CourseID)
	}

	payload, err := nestedPayload(env)
	if err != nil {
		return nil, err
	}
	var body struct {
		ID          string      `json:"id"`
		CurrentTime flexSeconds `json:"currentTime"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, rejectf("malformed video payload: %v", err)
	}
	if body.ID == "" {
		return nil, rejectf("video event without block id")
	}

	return &VideoEvent{
		EventType:     record.EventType,
		Course:        course.String(),
		UserID:        int64(env.Context.UserID),
		BlockID:       body.ID,
		ViewedSeconds: int(body.CurrentTime),
		Completed:     record.EventType == EventVideoStop,
		Day:           models.Day(record.OccurredAt),
	}, nil
}

// Apply implements Pipeline.
func (p *VideoViewsPipeline) Apply(ctx context.Context, event interface{}) error {
	ev, ok := event.(*VideoEvent)
	if !ok {
		return fmt.Errorf("video views pipeline got %T", event)
	}

	if ev.EventType == EventVideoPlay {
		_, err := p.db.AddVideoViewDayMember(ctx, ev.Course, ev.BlockID, ev.Day,
			strconv.FormatInt(ev.UserID, 10))
		return err
	}

	return p.applyProgress(ctx, ev)
}

// applyProgress handles pause/stop events carrying watch position.
//
// Completion is sticky: once a user's row completes, replayed earlier
// events are no-ops, which also protects the block rollup from
// double-promoting the same user.
func (p *VideoViewsPipeline) applyProgress(ctx context.Context, ev *VideoEvent) error {
	row, created, err := p.db.GetOrCreateVideoViewsByUser(ctx, ev.Course, ev.UserID, ev.BlockID)
	if err != nil {
		return err
	}
	if row.IsCompleted {
		return nil
	}

	if ev.ViewedSeconds >= row.ViewedSeconds {
		row.ViewedSeconds = ev.ViewedSeconds
		row.IsCompleted = ev.Completed
		if err := p.db.UpdateVideoViewsByUser(ctx, row); err != nil {
			return err
		}
	}

	if err := p.db.EnsureVideoViewsByBlock(ctx, ev.Course, ev.BlockID); err != nil {
		return err
	}
	if created {
		if err := p.db.IncrementVideoBlockPartViews(ctx, ev.Course, ev.BlockID); err != nil {
			return err
		}
	}
	if row.IsCompleted {
		// This event transitioned the user to complete: their contribution
		// migrates from the partial counter to the full one.
		return p.db.PromoteVideoBlockFullView(ctx, ev.Course, ev.BlockID, row.ViewedSeconds)
	}
	return nil
}
