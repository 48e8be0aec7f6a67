// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/rendergraph/internal/fence"
	"github.com/gogpu/rendergraph/internal/parallel"
)

// Barrier is a synchronization point in a graph. Passes can be added to it
// from any goroutine; when Execute reaches the barrier it waits for Signal
// and then builds the deferred passes in the order they were added.
type Barrier struct {
	name  string
	fence *fence.Fence

	mu     sync.Mutex
	passes []pass
}

func newBarrier(name string) *Barrier {
	return &Barrier{name: name, fence: fence.New()}
}

// Name returns the barrier name.
func (b *Barrier) Name() string { return b.name }

// AddPass defers a pass until the barrier is reached. Safe for concurrent use.
func (b *Barrier) AddPass(name string, build BuildFunc) {
	b.mu.Lock()
	b.passes = append(b.passes, pass{name: name, build: build})
	b.mu.Unlock()
}

// Signal releases the barrier. Passes must be added before Signal.
func (b *Barrier) Signal() { b.fence.Signal(1) }

// Signaled reports whether Signal was called.
func (b *Barrier) Signaled() bool { return b.fence.Reached(1) }

// Wait blocks until the barrier is signaled.
func (b *Barrier) Wait() { b.fence.Wait(1) }

// await waits for the signal. With an inline executor, queued recording
// tasks keep running while it waits since the signaler may be one of them.
func (b *Barrier) await(exec *parallel.Executor) {
	if !exec.Inline() {
		b.Wait()
		return
	}
	for !b.Signaled() {
		if exec.Poll() {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		_ = b.fence.WaitContext(ctx, 1)
		cancel()
	}
}

// snapshot returns the deferred passes. They stay attached so the graph
// can be executed again.
func (b *Barrier) snapshot() []pass {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.passes)
}
