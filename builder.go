// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rendergraph/resource"
)

// InitType is the action taken on a written resource after its barrier.
type InitType uint8

const (
	// InitNone leaves the contents as they are.
	InitNone InitType = iota
	// InitClear clears the resource to its clear value.
	InitClear
	// InitDiscard marks the contents undefined.
	InitDiscard
	// InitFence is reserved and behaves like InitNone.
	InitFence
)

// String returns the init type name.
func (t InitType) String() string {
	switch t {
	case InitNone:
		return "none"
	case InitClear:
		return "clear"
	case InitDiscard:
		return "discard"
	case InitFence:
		return "fence"
	default:
		return "unknown"
	}
}

// access is one declared resource use. Exactly one of handle and res is set.
type access struct {
	handle *resource.Handle
	res    *resource.Resource
	state  resource.State
	sub    int
	init   InitType
	uav    bool
}

func (a *access) resource() *resource.Resource {
	if a.handle != nil {
		return a.handle.Resource()
	}
	return a.res
}

func (a *access) clearValue() resource.ClearValue {
	if a.handle != nil {
		return a.handle.ClearValue()
	}
	return a.res.Desc().Clear
}

// Builder collects the resource accesses of one pass. It is only valid
// inside the build function it is passed to.
type Builder struct {
	pass     string
	accesses []access
	sealed   bool
}

func (b *Builder) add(a access) {
	if b.sealed {
		panic(errors.AssertionFailedf("rendergraph: builder of pass %q used after the pass was built", b.pass))
	}
	b.accesses = append(b.accesses, a)
}

// Pass returns the name of the pass being built.
func (b *Builder) Pass() string { return b.pass }

// Read declares that every subresource of h must be in state before the
// pass runs.
func (b *Builder) Read(h *resource.Handle, state resource.State) {
	b.add(access{handle: h, state: state, sub: resource.AllSubresources})
}

// Write declares a write of h in state, followed by init.
func (b *Builder) Write(h *resource.Handle, state resource.State, init InitType) {
	b.add(access{handle: h, state: state, sub: resource.AllSubresources, init: init})
}

// ReadResource declares a read of one subresource of a resource the graph
// does not own, or of all of them with resource.AllSubresources.
func (b *Builder) ReadResource(r *resource.Resource, state resource.State, sub int) {
	b.add(access{res: r, state: state, sub: sub})
}

// WriteResource declares a write of a resource the graph does not own.
func (b *Builder) WriteResource(r *resource.Resource, state resource.State, sub int, init InitType) {
	b.add(access{res: r, state: state, sub: sub, init: init})
}

// UAV declares an unordered-access dependency on h: its writes from earlier
// passes complete before this pass reads or writes it.
func (b *Builder) UAV(h *resource.Handle) {
	b.add(access{handle: h, uav: true})
}

// resolve turns the declared accesses into a barrier batch against the
// resources' tracked states and returns the init actions in declaration
// order. It runs on the submission goroutine.
func (b *Builder) resolve() (*resource.BarrierBatch, []initAction, int) {
	b.sealed = true
	batch := &resource.BarrierBatch{}
	var (
		inits  []initAction
		elided int
	)
	for i := range b.accesses {
		a := &b.accesses[i]
		r := a.resource()
		if a.uav {
			batch.UAV(r)
			continue
		}
		before := batch.Len()
		batch.Transition(r, a.state, a.sub)
		if batch.Len() == before {
			elided++
		}
		switch a.init {
		case InitClear:
			inits = append(inits, initAction{res: r, clear: true, value: a.clearValue()})
		case InitDiscard:
			inits = append(inits, initAction{res: r})
		}
	}
	return batch, inits, elided
}

// initAction is a clear or discard recorded after a pass's barriers.
type initAction struct {
	res   *resource.Resource
	clear bool
	value resource.ClearValue
}
