// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package descriptor implements fixed-capacity descriptor heaps.
//
// A heap is a bitmap of slots. Each slot names one view (render target,
// depth-stencil, shader resource or unordered access) so that passes can
// refer to views by a small integer handle. Capacities are fixed when the
// renderer starts; running out is a programming error and panics.
package descriptor

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/internal/bitm"
)

// Kind selects one of the four heaps.
type Kind int

const (
	// BackBufferRTV holds the swap chain's render target views.
	BackBufferRTV Kind = iota
	// RTV holds general render target views.
	RTV
	// DSV holds depth-stencil views.
	DSV
	// CBVSRVUAV is the shader-visible heap.
	CBVSRVUAV

	numKinds
)

// String returns the heap kind name.
func (k Kind) String() string {
	switch k {
	case BackBufferRTV:
		return "BackBufferRTV"
	case RTV:
		return "RTV"
	case DSV:
		return "DSV"
	case CBVSRVUAV:
		return "CBV_SRV_UAV"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Handle identifies a slot in a heap.
type Handle struct {
	Kind  Kind
	Index int32
}

// Invalid is the handle of an unallocated slot.
var Invalid = Handle{Index: -1}

// IsValid reports whether h refers to a slot.
func (h Handle) IsValid() bool { return h.Index >= 0 }

// Heap is a fixed-size descriptor heap.
//
// Heap is safe for concurrent use.
type Heap struct {
	kind     Kind
	capacity int

	mu    sync.Mutex
	bm    bitm.Bitm
	views []hal.TextureView
}

// NewHeap creates a heap with room for capacity descriptors.
func NewHeap(kind Kind, capacity int) *Heap {
	if capacity <= 0 {
		panic(errors.AssertionFailedf("descriptor: %s heap capacity must be positive, got %d", kind, capacity))
	}
	h := &Heap{
		kind:     kind,
		capacity: capacity,
		views:    make([]hal.TextureView, capacity),
	}
	h.bm.Grow((capacity + 63) / 64)
	// Bits past capacity are permanently taken.
	for i := capacity; i < h.bm.Cap(); i++ {
		h.bm.Set(i)
	}
	return h
}

// Kind returns the heap kind.
func (h *Heap) Kind() Kind { return h.kind }

// Alloc reserves a slot. Exhaustion panics.
func (h *Heap) Alloc() Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	i, ok := h.bm.Search()
	if !ok {
		panic(errors.AssertionFailedf("descriptor: %s heap exhausted (capacity %d)", h.kind, h.capacity))
	}
	h.bm.Set(i)
	return Handle{Kind: h.kind, Index: int32(i)} //nolint:gosec // bounded by capacity
}

// Free returns a slot to the heap and forgets its view.
func (h *Heap) Free(d Handle) {
	if !d.IsValid() {
		return
	}
	h.check(d)
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.bm.IsSet(int(d.Index)) {
		panic(errors.AssertionFailedf("descriptor: double free of %s slot %d", h.kind, d.Index))
	}
	h.bm.Unset(int(d.Index))
	h.views[d.Index] = nil
}

// Bind associates a view with a slot.
func (h *Heap) Bind(d Handle, view hal.TextureView) {
	h.check(d)
	h.mu.Lock()
	h.views[d.Index] = view
	h.mu.Unlock()
}

// View returns the view bound to a slot, or nil.
func (h *Heap) View(d Handle) hal.TextureView {
	h.check(d)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.views[d.Index]
}

// Len returns the number of allocated slots.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.capacity - h.bm.Rem()
}

// Cap returns the heap capacity.
func (h *Heap) Cap() int { return h.capacity }

func (h *Heap) check(d Handle) {
	if d.Kind != h.kind || d.Index < 0 || int(d.Index) >= h.capacity {
		panic(errors.AssertionFailedf("descriptor: handle %s/%d does not belong to %s heap", d.Kind, d.Index, h.kind))
	}
}

// Capacities sets the size of each heap.
type Capacities struct {
	BackBufferRTV int
	RTV           int
	DSV           int
	CBVSRVUAV     int
}

// DefaultCapacities are sized for a deferred renderer with a few dozen
// transient targets.
var DefaultCapacities = Capacities{
	BackBufferRTV: 4,
	RTV:           256,
	DSV:           64,
	CBVSRVUAV:     4096,
}

// Heaps bundles the four heap kinds.
type Heaps struct {
	heaps [numKinds]*Heap
}

// NewHeaps creates all four heaps. Zero capacities take the defaults.
func NewHeaps(c Capacities) *Heaps {
	pick := func(v, def int) int {
		if v <= 0 {
			return def
		}
		return v
	}
	return &Heaps{heaps: [numKinds]*Heap{
		BackBufferRTV: NewHeap(BackBufferRTV, pick(c.BackBufferRTV, DefaultCapacities.BackBufferRTV)),
		RTV:           NewHeap(RTV, pick(c.RTV, DefaultCapacities.RTV)),
		DSV:           NewHeap(DSV, pick(c.DSV, DefaultCapacities.DSV)),
		CBVSRVUAV:     NewHeap(CBVSRVUAV, pick(c.CBVSRVUAV, DefaultCapacities.CBVSRVUAV)),
	}}
}

// Heap returns the heap of the given kind.
func (hs *Heaps) Heap(k Kind) *Heap { return hs.heaps[k] }

// Free releases d in the heap it belongs to.
func (hs *Heaps) Free(d Handle) {
	if d.IsValid() {
		hs.heaps[d.Kind].Free(d)
	}
}
