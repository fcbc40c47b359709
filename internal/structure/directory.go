// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

// Package structure is the collaborator interface to the course-structure
// directory service: the read-only tree of sections, subsections, and
// units the student-step pipeline walks to resolve navigation targets.
//
// The pipeline treats every lookup as a fresh, possibly-failing external
// call; no tree state is cached here.
package structure

import (
	"context"
	"errors"
)

// ErrItemNotFound reports that the directory has no item with the given id.
var ErrItemNotFound = errors.New("structure item not found")

// Item is one node of the course tree. Children are ordered as the course
// author arranged them; Parent is empty at the course root.
type Item struct {
	ID       string   `json:"id"`
	Parent   string   `json:"parent,omitempty"`
	Children []string `json:"children"`
}

// Directory looks up course tree nodes by block id.
//
// Implementations must be safe for concurrent use and should return
// ErrItemNotFound (possibly wrapped) for unknown ids so callers can
// distinguish a missing block from an unavailable service.
type Directory interface {
	GetItem(ctx context.Context, id string) (*Item, error)
}
