// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package pipeline

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Tracking-log event types, as emitted by the LMS.
const (
	EventEnrollActivated   = "edx.course.enrollment.activated"
	EventEnrollDeactivated = "edx.course.enrollment.deactivated"

	EventVideoPlay  = "play_video"
	EventVideoPause = "pause_video"
	EventVideoStop  = "stop_video"

	EventForumThreadCreated   = "edx.forum.thread.created"
	EventForumResponseCreated = "edx.forum.response.created"
	EventForumCommentCreated  = "edx.forum.comment.created"
	EventForumThreadVoted     = "edx.forum.thread.voted"
	EventForumResponseVoted   = "edx.forum.response.voted"

	EventSeqGoto   = "seq_goto"
	EventSeqNext   = "seq_next"
	EventSeqPrev   = "seq_prev"
	EventUISeqNext = "edx.ui.lms.sequence.next_selected"
	EventUISeqPrev = "edx.ui.lms.sequence.previous_selected"
)

// envelope is the outer shape shared by all tracking-log events.
type envelope struct {
	EventType string          `json:"event_type"`
	Name      string          `json:"name"`
	Username  string          `json:"username"`
	Context   envelopeContext `json:"context"`
	Event     json.RawMessage `json:"event"`
}

type envelopeContext struct {
	CourseID string `json:"course_id"`
	UserID   flexID `json:"user_id"`
	Username string `json:"username"`
}

// flexID tolerates the LMS emitting user ids as numbers or strings.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexID(n)
	return nil
}

// decodeEnvelope parses the raw event body into its envelope.
func decodeEnvelope(body string) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, rejectf("malformed payload: %v", err)
	}
	return &env, nil
}

// nestedPayload returns the envelope's inner event member as JSON bytes.
// Some producers emit it as an object, others as a JSON string holding an
// object; both forms must decode.
func nestedPayload(env *envelope) ([]byte, error) {
	if len(env.Event) == 0 {
		return nil, rejectf("missing event payload")
	}
	if env.Event[0] == '"' {
		var inner string
		if err := json.Unmarshal(env.Event, &inner); err != nil {
			return nil, rejectf("malformed stringified event payload: %v", err)
		}
		return []byte(inner), nil
	}
	return env.Event, nil
}

// flexSeconds tolerates currentTime arriving as an int, float, or string.
type flexSeconds int

func (f *flexSeconds) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && n >= 0 {
		*f = flexSeconds(int(n))
	} else {
		*f = 0
	}
	return nil
}
