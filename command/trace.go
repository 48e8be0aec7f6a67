// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gogpu/rendergraph/resource"
)

// Trace is an append-only log of barrier batches, for comparing runs.
// Trace is safe for concurrent use.
type Trace struct {
	mu     sync.Mutex
	events []string
}

// Record appends one line per entry of b, prefixed with scope.
func (t *Trace) Record(scope string, b *resource.BarrierBatch) {
	if t == nil || b.Len() == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tr := range b.Transitions() {
		t.events = append(t.events, scope+": "+tr.String())
	}
	for _, r := range b.UAVs() {
		t.events = append(t.events, fmt.Sprintf("%s: %s uav", scope, r.Label()))
	}
}

// Event appends a free-form line.
func (t *Trace) Event(format string, args ...any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.events = append(t.events, fmt.Sprintf(format, args...))
	t.mu.Unlock()
}

// Events returns a copy of the recorded lines.
func (t *Trace) Events() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.events)
}

// String joins the events with newlines.
func (t *Trace) String() string {
	return strings.Join(t.Events(), "\n")
}

// Reset drops every event.
func (t *Trace) Reset() {
	t.mu.Lock()
	t.events = t.events[:0]
	t.mu.Unlock()
}
