// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/amoroz/coursetrace/internal/database"
	"github.com/amoroz/coursetrace/internal/keys"
	"github.com/amoroz/coursetrace/internal/models"
	"github.com/amoroz/coursetrace/internal/structure"
)

// StudentStepEvent is one resolved navigation transition between units.
type StudentStepEvent struct {
	EventType    string
	Course       string
	UserID       int64
	SubsectionID string
	CurrentUnit  string
	TargetUnit   string
	OccurredAt   time.Time
}

// StudentStepPipeline reconstructs unit-to-unit navigation from sequence
// events. Tab-switch events carry 1-based tab indexes into the current
// subsection; the subsection-boundary UI events carry no indexes at all,
// so the target unit is resolved by walking the course tree through the
// structure directory.
type StudentStepPipeline struct {
	db  *database.DB
	dir structure.Directory
}

// NewStudentStepPipeline constructs the student step pipeline.
func NewStudentStepPipeline(db *database.DB, dir structure.Directory) *StudentStepPipeline {
	return &StudentStepPipeline{db: db, dir: dir}
}

// ID implements Pipeline.
func (p *StudentStepPipeline) ID() string { return "student_step" }

// SupportedEventTypes implements Pipeline.
func (p *StudentStepPipeline) SupportedEventTypes() []string {
	return []string{EventSeqGoto, EventSeqNext, EventSeqPrev, EventUISeqNext, EventUISeqPrev}
}

// stepPayload is the inner event member of a sequence event. Old and New
// are 1-based tab positions; the UI boundary events omit both.
type stepPayload struct {
	ID  string `json:"id"`
	Old int    `json:"old"`
	New int    `json:"new"`
}

// Format implements Pipeline.
func (p *StudentStepPipeline) Format(ctx context.Context, record *models.RawLogRecord) (interface{}, error) {
	env, err := decodeEnvelope(record.Body)
	if err != nil {
		return nil, err
	}
	if env.Context.CourseID == "" || env.Context.UserID == 0 {
		return nil, rejectf("sequence event without course_id or user_id in context")
	}
	course, err := keys.ParseCourseKey(env.Context.CourseID)
	if err != nil {
		return nil, rejectf("unresolvable course key %q", env.Context.CourseID)
	}

	raw, err := nestedPayload(env)
	if err != nil {
		return nil, err
	}
	var payload stepPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, rejectf("malformed sequence payload: %v", err)
	}
	if payload.ID == "" {
		return nil, rejectf("sequence event without a subsection id")
	}

	var current, target string
	switch record.EventType {
	case EventSeqGoto, EventSeqNext, EventSeqPrev:
		current, target, err = p.resolveTabSwitch(ctx, record.EventType, &payload)
	case EventUISeqNext:
		current, target, err = p.resolveBoundaryNext(ctx, payload.ID)
	case EventUISeqPrev:
		current, target, err = p.resolveBoundaryPrev(ctx, payload.ID)
	default:
		return nil, rejectf("event type %q is not a sequence event", record.EventType)
	}
	if err != nil {
		return nil, err
	}
	if current == target {
		return nil, rejectf("transition from %q to itself", current)
	}

	return &StudentStepEvent{
		EventType:    record.EventType,
		Course:       course.String(),
		UserID:       int64(env.Context.UserID),
		SubsectionID: payload.ID,
		CurrentUnit:  current,
		TargetUnit:   target,
		OccurredAt:   record.OccurredAt,
	}, nil
}

// resolveTabSwitch maps 1-based tab positions onto the subsection's unit
// list. seq_next and seq_prev sometimes omit the new position, in which
// case it is one step from the old one.
func (p *StudentStepPipeline) resolveTabSwitch(ctx context.Context, eventType string, payload *stepPayload) (string, string, error) {
	oldTab, newTab := payload.Old, payload.New
	if newTab == 0 {
		switch eventType {
		case EventSeqNext:
			newTab = oldTab + 1
		case EventSeqPrev:
			newTab = oldTab - 1
		}
	}
	item, err := p.getItem(ctx, payload.ID)
	if err != nil {
		return "", "", err
	}
	units := item.Children
	if oldTab < 1 || oldTab > len(units) || newTab < 1 || newTab > len(units) {
		return "", "", rejectf("tab positions %d->%d outside subsection %q with %d units",
			payload.Old, payload.New, payload.ID, len(units))
	}
	return units[oldTab-1], units[newTab-1], nil
}

// resolveBoundaryNext handles the "next" arrow past the end of a
// subsection: the student leaves its last unit for the first unit of the
// following subsection, crossing into the next section when the current
// subsection is its section's last.
func (p *StudentStepPipeline) resolveBoundaryNext(ctx context.Context, subsectionID string) (string, string, error) {
	subsection, err := p.getItem(ctx, subsectionID)
	if err != nil {
		return "", "", err
	}
	if len(subsection.Children) == 0 {
		return "", "", rejectf("subsection %q has no units", subsectionID)
	}
	current := subsection.Children[len(subsection.Children)-1]

	next, err := p.sibling(ctx, subsection, +1)
	if err != nil {
		return "", "", err
	}
	if len(next.Children) == 0 {
		return "", "", rejectf("subsection %q has no units", next.ID)
	}
	return current, next.Children[0], nil
}

// resolveBoundaryPrev mirrors resolveBoundaryNext for the "previous"
// arrow: first unit of the subsection back to the last unit of the one
// before it.
func (p *StudentStepPipeline) resolveBoundaryPrev(ctx context.Context, subsectionID string) (string, string, error) {
	subsection, err := p.getItem(ctx, subsectionID)
	if err != nil {
		return "", "", err
	}
	if len(subsection.Children) == 0 {
		return "", "", rejectf("subsection %q has no units", subsectionID)
	}
	current := subsection.Children[0]

	prev, err := p.sibling(ctx, subsection, -1)
	if err != nil {
		return "", "", err
	}
	if len(prev.Children) == 0 {
		return "", "", rejectf("subsection %q has no units", prev.ID)
	}
	return current, prev.Children[len(prev.Children)-1], nil
}

// sibling returns the subsection adjacent to item within its section, in
// the given direction. When item sits at the section edge the walk climbs
// to the section's parent and descends into the adjacent section: its
// first subsection going forward, its last going backward.
func (p *StudentStepPipeline) sibling(ctx context.Context, item *structure.Item, direction int) (*structure.Item, error) {
	if item.Parent == "" {
		return nil, rejectf("subsection %q has no parent section", item.ID)
	}
	section, err := p.getItem(ctx, item.Parent)
	if err != nil {
		return nil, err
	}
	pos := indexOf(section.Children, item.ID)
	if pos < 0 {
		return nil, rejectf("subsection %q missing from section %q", item.ID, section.ID)
	}

	adjacent := pos + direction
	if adjacent >= 0 && adjacent < len(section.Children) {
		return p.getItem(ctx, section.Children[adjacent])
	}

	// Off the section edge: move to the adjacent section.
	nextSection, err := p.sectionSibling(ctx, section, direction)
	if err != nil {
		return nil, err
	}
	if len(nextSection.Children) == 0 {
		return nil, rejectf("section %q has no subsections", nextSection.ID)
	}
	if direction > 0 {
		return p.getItem(ctx, nextSection.Children[0])
	}
	return p.getItem(ctx, nextSection.Children[len(nextSection.Children)-1])
}

func (p *StudentStepPipeline) sectionSibling(ctx context.Context, section *structure.Item, direction int) (*structure.Item, error) {
	if section.Parent == "" {
		return nil, rejectf("section %q has no parent course", section.ID)
	}
	course, err := p.getItem(ctx, section.Parent)
	if err != nil {
		return nil, err
	}
	pos := indexOf(course.Children, section.ID)
	if pos < 0 {
		return nil, rejectf("section %q missing from course %q", section.ID, course.ID)
	}
	adjacent := pos + direction
	if adjacent < 0 || adjacent >= len(course.Children) {
		return nil, rejectf("no section %s of %q", directionWord(direction), section.ID)
	}
	return p.getItem(ctx, course.Children[adjacent])
}

// getItem looks up one tree node. An id the directory does not know is a
// rejection; an unavailable directory is a real failure the engine counts.
func (p *StudentStepPipeline) getItem(ctx context.Context, id string) (*structure.Item, error) {
	item, err := p.dir.GetItem(ctx, id)
	if errors.Is(err, structure.ErrItemNotFound) {
		return nil, rejectf("structure item %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("structure lookup for %q: %w", id, err)
	}
	return item, nil
}

func indexOf(ids []string, id string) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}

func directionWord(direction int) string {
	if direction > 0 {
		return "after"
	}
	return "before"
}

// Apply implements Pipeline.
func (p *StudentStepPipeline) Apply(ctx context.Context, event interface{}) error {
	ev, ok := event.(*StudentStepEvent)
	if !ok {
		return fmt.Errorf("student step pipeline got %T", event)
	}
	_, err := p.db.InsertStudentStep(ctx, &models.StudentStep{
		EventType:    ev.EventType,
		UserID:       ev.UserID,
		Course:       ev.Course,
		SubsectionID: ev.SubsectionID,
		CurrentUnit:  ev.CurrentUnit,
		TargetUnit:   ev.TargetUnit,
		OccurredAt:   ev.OccurredAt,
	})
	return err
}
