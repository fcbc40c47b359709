// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package supervisor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

type markerService struct {
	started chan struct{}
}

func (s *markerService) Serve(ctx context.Context) error {
	close(s.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestTreeRunsAndStopsServices(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tree := NewTree(logger, DefaultTreeConfig())

	worker := &markerService{started: make(chan struct{})}
	ops := &markerService{started: make(chan struct{})}
	tree.AddWorker(worker)
	tree.AddOps(ops)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range []*markerService{worker, ops} {
		select {
		case <-svc.started:
		case <-time.After(5 * time.Second):
			t.Fatal("service did not start")
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}

	unstopped, err := tree.UnstoppedServiceReport()
	if err != nil {
		t.Fatalf("UnstoppedServiceReport failed: %v", err)
	}
	if len(unstopped) != 0 {
		t.Errorf("%d services failed to stop", len(unstopped))
	}
}

func TestNewTreeAppliesDefaults(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// A zero config must not produce a zero-backoff restart loop.
	tree := NewTree(logger, TreeConfig{})
	if tree.root == nil || tree.workers == nil || tree.ops == nil {
		t.Fatal("tree layers not constructed")
	}
}
