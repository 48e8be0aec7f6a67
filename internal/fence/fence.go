// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package fence provides a CPU-side counting fence.
//
// A Fence carries a monotonically increasing value. Producers raise it with
// Signal or Increment; consumers block in Wait until it reaches a target.
// It is the CPU analogue of a GPU timeline fence and is used for in-flight
// task accounting and cross-goroutine barriers.
package fence

import (
	"context"
	"sync"
)

// Fence is a counting fence. The zero value is not usable; call New.
//
// Fence is safe for concurrent use.
type Fence struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value uint64

	// wake is closed and replaced on every raise so WaitContext can select on it.
	wake chan struct{}
}

// New returns a fence with value 0.
func New() *Fence {
	f := &Fence{wake: make(chan struct{})}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Value returns the current value.
func (f *Fence) Value() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Signal raises the value to v. Lower values are ignored.
func (f *Fence) Signal(v uint64) {
	f.mu.Lock()
	if v > f.value {
		f.value = v
		f.broadcastLocked()
	}
	f.mu.Unlock()
}

// Increment adds one to the value and returns the new value.
func (f *Fence) Increment() uint64 {
	f.mu.Lock()
	f.value++
	v := f.value
	f.broadcastLocked()
	f.mu.Unlock()
	return v
}

// Reached reports whether the value is at least v.
func (f *Fence) Reached(v uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value >= v
}

// Wait blocks until the value is at least v.
func (f *Fence) Wait(v uint64) {
	f.mu.Lock()
	for f.value < v {
		f.cond.Wait()
	}
	f.mu.Unlock()
}

// WaitContext is Wait with cancellation.
func (f *Fence) WaitContext(ctx context.Context, v uint64) error {
	for {
		f.mu.Lock()
		if f.value >= v {
			f.mu.Unlock()
			return nil
		}
		wake := f.wake
		f.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Fence) broadcastLocked() {
	f.cond.Broadcast()
	close(f.wake)
	f.wake = make(chan struct{})
}
