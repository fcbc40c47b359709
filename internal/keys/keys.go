// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

// Package keys resolves raw course and block identifier strings into the
// validated structured keys the derived tables are keyed on. Parsing is
// pure; the only failure mode is ErrInvalidKey.
//
// Two course-key formats are accepted:
//
//	course-v1:Org+Course+Run        (current)
//	Org/Course/Run                  (legacy)
//
// and two block-key formats:
//
//	block-v1:Org+Course+Run+type@category+block@id   (current)
//	i4x://Org/Course/category/id                     (legacy)
package keys

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey reports a malformed course or block identifier.
var ErrInvalidKey = errors.New("invalid identifier")

// coursePrefix and blockPrefix are the current opaque-key namespaces.
const (
	coursePrefix = "course-v1:"
	blockPrefix  = "block-v1:"
	legacyPrefix = "i4x://"
)

// CourseKey identifies one course run.
type CourseKey struct {
	Org    string
	Course string
	Run    string
}

// String returns the canonical course-v1 form, which is what derived
// tables store regardless of the input format.
func (k CourseKey) String() string {
	return coursePrefix + k.Org + "+" + k.Course + "+" + k.Run
}

// ParseCourseKey resolves a raw course identifier string.
func ParseCourseKey(raw string) (CourseKey, error) {
	if rest, ok := strings.CutPrefix(raw, coursePrefix); ok {
		parts := strings.Split(rest, "+")
		if len(parts) != 3 || hasEmpty(parts) {
			return CourseKey{}, fmt.Errorf("%w: course key %q", ErrInvalidKey, raw)
		}
		return CourseKey{Org: parts[0], Course: parts[1], Run: parts[2]}, nil
	}

	// Legacy slash-separated form.
	parts := strings.Split(raw, "/")
	if len(parts) != 3 || hasEmpty(parts) || strings.Contains(raw, "+") {
		return CourseKey{}, fmt.Errorf("%w: course key %q", ErrInvalidKey, raw)
	}
	return CourseKey{Org: parts[0], Course: parts[1], Run: parts[2]}, nil
}

// BlockKey identifies one block (unit, sequential, video...) inside a
// course run.
type BlockKey struct {
	Course   CourseKey
	Category string
	BlockID  string
}

// String returns the canonical block-v1 form.
func (k BlockKey) String() string {
	return blockPrefix + k.Course.Org + "+" + k.Course.Course + "+" + k.Course.Run +
		"+type@" + k.Category + "+block@" + k.BlockID
}

// ParseBlockKey resolves a raw block identifier string.
func ParseBlockKey(raw string) (BlockKey, error) {
	if rest, ok := strings.CutPrefix(raw, blockPrefix); ok {
		parts := strings.Split(rest, "+")
		if len(parts) != 5 || hasEmpty(parts) {
			return BlockKey{}, fmt.Errorf("%w: block key %q", ErrInvalidKey, raw)
		}
		category, ok := strings.CutPrefix(parts[3], "type@")
		if !ok {
			return BlockKey{}, fmt.Errorf("%w: block key %q", ErrInvalidKey, raw)
		}
		blockID, ok := strings.CutPrefix(parts[4], "block@")
		if !ok {
			return BlockKey{}, fmt.Errorf("%w: block key %q", ErrInvalidKey, raw)
		}
		return BlockKey{
			Course:   CourseKey{Org: parts[0], Course: parts[1], Run: parts[2]},
			Category: category,
			BlockID:  blockID,
		}, nil
	}

	if rest, ok := strings.CutPrefix(raw, legacyPrefix); ok {
		parts := strings.Split(rest, "/")
		if len(parts) != 4 || hasEmpty(parts) {
			return BlockKey{}, fmt.Errorf("%w: block key %q", ErrInvalidKey, raw)
		}
		// The legacy form carries no run; derived tables never need it for
		// block keys, only the block id itself.
		return BlockKey{
			Course:   CourseKey{Org: parts[0], Course: parts[1]},
			Category: parts[2],
			BlockID:  parts[3],
		}, nil
	}

	return BlockKey{}, fmt.Errorf("%w: block key %q", ErrInvalidKey, raw)
}

func hasEmpty(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return true
		}
	}
	return false
}
