// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package models

import "time"

// EnrollmentDay holds the per-course, per-day enrollment rollup.
//
// Total is cumulative: it equals the Total of the most recent earlier day
// for the same course plus Enrolled - Unenrolled of this day. When a
// back-filled event changes an earlier day, every later day's Total is
// shifted by the same delta.
type EnrollmentDay struct {
	Course      string    `json:"course"`
	Day         time.Time `json:"day"`
	Total       int       `json:"total"`
	Enrolled    int       `json:"enrolled"`
	Unenrolled  int       `json:"unenrolled"`
	LastUpdated time.Time `json:"last_updated"`
}

// VideoViewsByUser tracks one user's progress on one video block.
// ViewedSeconds never decreases; IsCompleted is sticky once true.
type VideoViewsByUser struct {
	Course        string `json:"course"`
	UserID        int64  `json:"user_id"`
	BlockID       string `json:"block_id"`
	ViewedSeconds int    `json:"viewed_seconds"`
	IsCompleted   bool   `json:"is_completed"`
}

// VideoViewsByBlock aggregates completion across all users of one block.
// A user contributes to PartViewed on first touch and migrates to
// FullViewed when their per-user row completes.
type VideoViewsByBlock struct {
	Course          string `json:"course"`
	BlockID         string `json:"block_id"`
	PartViewed      int    `json:"part_viewed"`
	FullViewed      int    `json:"full_viewed"`
	DurationSeconds int    `json:"duration_seconds"`
}

// VideoViewsByDay counts distinct users who started a video block on a
// given day. Total always equals the cardinality of MemberIDs.
type VideoViewsByDay struct {
	Course    string    `json:"course"`
	BlockID   string    `json:"block_id"`
	Day       time.Time `json:"day"`
	Total     int       `json:"total"`
	MemberIDs []string  `json:"member_ids"`
}

// CourseVisitsByDay counts distinct users who visited a course on a given
// day. Total always equals the cardinality of MemberIDs.
type CourseVisitsByDay struct {
	Course    string    `json:"course"`
	Day       time.Time `json:"day"`
	Total     int       `json:"total"`
	MemberIDs []string  `json:"member_ids"`
}

// LastCourseVisit records when a user last touched a course. LastSeenAt
// only ever moves forward.
type LastCourseVisit struct {
	UserID     int64     `json:"user_id"`
	Course     string    `json:"course"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// DiscussionActivity is one forum action fact. The full business key is
// unique, which makes the rollup increment idempotent under re-delivery.
type DiscussionActivity struct {
	ID            int64     `json:"id"`
	EventType     string    `json:"event_type"`
	UserID        int64     `json:"user_id"`
	Course        string    `json:"course"`
	CategoryID    string    `json:"category_id,omitempty"`
	CommentableID string    `json:"commentable_id"`
	DiscussionID  string    `json:"discussion_id"`
	ThreadType    string    `json:"thread_type,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// DiscussionActivityByDay is the per-course, per-day rollup over
// DiscussionActivity facts.
type DiscussionActivityByDay struct {
	Course string    `json:"course"`
	Day    time.Time `json:"day"`
	Total  int       `json:"total"`
}

// StudentStep is one accepted navigation transition between course units.
type StudentStep struct {
	ID           int64     `json:"id"`
	EventType    string    `json:"event_type"`
	UserID       int64     `json:"user_id"`
	Course       string    `json:"course"`
	SubsectionID string    `json:"subsection_id"`
	CurrentUnit  string    `json:"current_unit"`
	TargetUnit   string    `json:"target_unit"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Day truncates a timestamp to its UTC date, the grain every per-day
// rollup is keyed on.
func Day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
