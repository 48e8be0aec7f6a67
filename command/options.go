// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"time"

	"github.com/gogpu/rendergraph/descriptor"
)

// DefaultCommandLists is the list pool size of a queue, enough for one
// frame of a deferred renderer.
const DefaultCommandLists = 64

// Option configures a Queue.
type Option func(*config)

type config struct {
	label     string
	lists     int
	waitSlice time.Duration
	warnAfter time.Duration
	heap      *descriptor.Heap
	trace     *Trace
}

func defaultConfig() config {
	return config{
		label:     "queue",
		lists:     DefaultCommandLists,
		waitSlice: time.Millisecond,
		warnAfter: 2 * time.Second,
	}
}

// WithLabel names the queue in logs and HAL labels.
func WithLabel(label string) Option {
	return func(c *config) { c.label = label }
}

// WithCommandLists sets the number of command lists the queue can hand out
// between two Execute calls.
func WithCommandLists(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.lists = n
		}
	}
}

// WithFenceWait sets how often a fence wait polls the HAL queue and after
// how long a still-pending wait is reported. Fence waits never give up.
func WithFenceWait(slice, warnAfter time.Duration) Option {
	return func(c *config) {
		if slice > 0 {
			c.waitSlice = slice
		}
		if warnAfter > 0 {
			c.warnAfter = warnAfter
		}
	}
}

// WithDescriptorHeap sets the shader-visible heap bound on every list
// before recording.
func WithDescriptorHeap(h *descriptor.Heap) Option {
	return func(c *config) { c.heap = h }
}

// WithTrace records every barrier flush into t.
func WithTrace(t *Trace) Option {
	return func(c *config) { c.trace = t }
}
