// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
)

// HandleDesc describes a transient resource.
type HandleDesc struct {
	ViewType ViewType
	Width    uint32
	Height   uint32
	Depth    uint32
	Format   gputypes.TextureFormat
	Clear    ClearValue
}

// Handle is a graph-scoped reference to a pooled resource.
//
// The backing resource is taken from the allocator on the first Resource
// call and given back exactly once by Release, which may run on any
// goroutine.
type Handle struct {
	desc  HandleDesc
	alloc *ViewAllocator

	once     sync.Once
	res      *Resource
	hash     uint64
	resolved atomic.Bool
	released atomic.Bool
}

// NewHandle creates an unresolved handle.
func NewHandle(alloc *ViewAllocator, desc HandleDesc) *Handle {
	if desc.Depth == 0 {
		desc.Depth = 1
	}
	return &Handle{desc: desc, alloc: alloc}
}

// Desc returns the handle descriptor.
func (h *Handle) Desc() HandleDesc { return h.desc }

// ClearValue returns the value clears of this handle use.
func (h *Handle) ClearValue() ClearValue { return h.desc.Clear }

// Resolved reports whether the backing resource has been taken.
func (h *Handle) Resolved() bool {
	return h.resolved.Load()
}

// Resource returns the backing resource, allocating it on first use.
func (h *Handle) Resource() *Resource {
	if h.released.Load() {
		panic(errors.AssertionFailedf("resource: handle %s %dx%d used after Release", h.desc.ViewType, h.desc.Width, h.desc.Height))
	}
	h.once.Do(func() {
		r, hash, err := h.alloc.Alloc(h.desc.Width, h.desc.Height, h.desc.Depth, h.desc.Format, h.desc.ViewType)
		if err != nil {
			panic(errors.Wrap(err, "resource: resolve handle"))
		}
		h.res, h.hash = r, hash
		h.resolved.Store(true)
	})
	return h.res
}

// Release returns the backing resource to the pool. A second Release panics.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		panic(errors.AssertionFailedf("resource: handle %s %dx%d released twice", h.desc.ViewType, h.desc.Width, h.desc.Height))
	}
	// Block a concurrent first resolve from racing the release.
	h.once.Do(func() {})
	if h.res != nil {
		h.alloc.Recycle(h.res, h.hash)
	}
}
