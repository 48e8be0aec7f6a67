// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package threadcheck asserts that submission-only state is never entered
// from two goroutines at once.
package threadcheck

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Guard detects overlapping use. The zero value is ready to use.
//
// Go has no stable goroutine identity, so the single-submitter rule is
// checked as mutual exclusion: a second Enter before the matching Exit is
// a programming error and panics.
type Guard struct {
	owner atomic.Pointer[string]
}

// Enter marks the guarded state as in use by op.
func (g *Guard) Enter(op string) {
	if !g.owner.CompareAndSwap(nil, &op) {
		cur := "?"
		if p := g.owner.Load(); p != nil {
			cur = *p
		}
		panic(errors.AssertionFailedf("threadcheck: %s called while %s is running on another goroutine", op, cur))
	}
}

// Exit releases the guard.
func (g *Guard) Exit() {
	g.owner.Store(nil)
}

// Busy reports whether some goroutine holds the guard.
func (g *Guard) Busy() bool { return g.owner.Load() != nil }
