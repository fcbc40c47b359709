// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/amoroz/coursetrace/internal/database"
	"github.com/amoroz/coursetrace/internal/keys"
	"github.com/amoroz/coursetrace/internal/models"
)

// DiscussionEvent is one accepted forum action.
type DiscussionEvent struct {
	EventType     string
	UserID        int64
	Course        string
	CategoryID    string
	CommentableID string
	DiscussionID  string
	ThreadType    string
	OccurredAt    time.Time
}

// DiscussionPipeline maintains the forum fact table and its per-day rollup.
type DiscussionPipeline struct {
	db *database.DB
}

// NewDiscussionPipeline constructs the discussion pipeline.
func NewDiscussionPipeline(db *database.DB) *DiscussionPipeline {
	return &DiscussionPipeline{db: db}
}

// ID implements Pipeline.
func (p *DiscussionPipeline) ID() string { return "discussion" }

// SupportedEventTypes implements Pipeline.
func (p *DiscussionPipeline) SupportedEventTypes() []string {
	return []string{
		EventForumThreadCreated,
		EventForumResponseCreated,
		EventForumCommentCreated,
		EventForumThreadVoted,
		EventForumResponseVoted,
	}
}

// Format implements Pipeline.
func (p *DiscussionPipeline) Format(_ context.Context, record *models.RawLogRecord) (interface{}, error) {
	env, err := decodeEnvelope(record.Body)
	if err != nil {
		return nil, err
	}
	if env.Context.CourseID == "" || env.Context.UserID == 0 {
		return nil, rejectf("discussion event without course_id or user_id")
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
		ID            string `json:"id"`
		CategoryID    string `json:"category_id"`
		CommentableID string `json:"commentable_id"`
		ThreadType    string `json:"thread_type"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, rejectf("malformed discussion payload: %v", err)
	}
	if body.ID == "" || body.CommentableID == "" {
		return nil, rejectf("discussion event without id or commentable_id")
	}

	return &DiscussionEvent{
		EventType:     record.EventType,
		UserID:        int64(env.Context.UserID),
		Course:        course.String(),
		CategoryID:    body.CategoryID,
		CommentableID: body.CommentableID,
		DiscussionID:  body.ID,
		ThreadType:    body.ThreadType,
		OccurredAt:    record.OccurredAt,
	}, nil
}

// Apply implements Pipeline.
//
// Classic fact/rollup pair: the rollup increments only when the fact
// insert was novel, so re-delivery cannot double count.
func (p *DiscussionPipeline) Apply(ctx context.Context, event interface{}) error {
	ev, ok := event.(*DiscussionEvent)
	if !ok {
		return fmt.Errorf("discussion pipeline got %T", event)
	}

	created, err := p.db.InsertDiscussionActivity(ctx, &models.DiscussionActivity{
		EventType:     ev.EventType,
		UserID:        ev.UserID,
		Course:        ev.Course,
		CategoryID:    ev.CategoryID,
		CommentableID: ev.CommentableID,
		DiscussionID:  ev.DiscussionID,
		ThreadType:    ev.ThreadType,
		OccurredAt:    ev.OccurredAt,
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	return p.db.IncrementDiscussionActivityByDay(ctx, ev.Course, models.Day(ev.OccurredAt))
}
