// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/descriptor"
	"github.com/gogpu/rendergraph/internal/rglog"
)

// ErrAllocatorClosed is returned by Alloc after Close.
var ErrAllocatorClosed = errors.New("resource: view allocator closed")

// Hash keys the view pool. Equal hashes mean interchangeable resources.
func Hash(width, height, depth uint32, format gputypes.TextureFormat, vt ViewType) uint64 {
	if depth == 0 {
		depth = 1
	}
	var buf [4 * 5]byte
	binary.LittleEndian.PutUint32(buf[0:], width)
	binary.LittleEndian.PutUint32(buf[4:], height)
	binary.LittleEndian.PutUint32(buf[8:], depth)
	binary.LittleEndian.PutUint32(buf[12:], uint32(format))
	binary.LittleEndian.PutUint32(buf[16:], uint32(vt))
	h := fnv.New64a()
	_, _ = h.Write(buf[:])
	v := h.Sum64()
	if v == 0 {
		// Zero asks Recycle to recompute.
		v = 1
	}
	return v
}

// HashOf recomputes the pool key of r.
func HashOf(r *Resource) uint64 {
	d := r.Desc()
	return Hash(d.Width, d.Height, d.Depth, d.Format, r.ViewType())
}

// AllocatorStats reports pool activity.
type AllocatorStats struct {
	Allocs  uint64 // Alloc calls
	Hits    uint64 // Allocs served from the pool
	Created uint64 // resources created
	Pooled  int    // resources currently in the pool
}

// ViewAllocator pools transient resources keyed by shape.
//
// The pool never shrinks; entries live until Close. ViewAllocator is safe
// for concurrent use.
type ViewAllocator struct {
	device hal.Device
	heaps  *descriptor.Heaps

	mu     sync.Mutex
	pool   map[uint64][]*Resource
	stats  AllocatorStats
	closed bool
}

// NewViewAllocator creates an empty pool.
func NewViewAllocator(device hal.Device, heaps *descriptor.Heaps) *ViewAllocator {
	return &ViewAllocator{
		device: device,
		heaps:  heaps,
		pool:   make(map[uint64][]*Resource),
	}
}

// Alloc pops a pooled resource of the given shape or creates one.
func (a *ViewAllocator) Alloc(width, height, depth uint32, format gputypes.TextureFormat, vt ViewType) (*Resource, uint64, error) {
	key := Hash(width, height, depth, format, vt)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, 0, ErrAllocatorClosed
	}
	a.stats.Allocs++
	if stack := a.pool[key]; len(stack) > 0 {
		r := stack[len(stack)-1]
		a.pool[key] = stack[:len(stack)-1]
		a.stats.Hits++
		a.stats.Pooled--
		a.mu.Unlock()
		return r, key, nil
	}
	a.stats.Created++
	n := a.stats.Created
	a.mu.Unlock()

	r, err := New(a.device, a.heaps, Desc{
		Label:  fmt.Sprintf("transient %s %dx%dx%d #%d", vt, width, height, max(depth, 1), n),
		Width:  width,
		Height: height,
		Depth:  depth,
		Format: format,
		Flags:  vt.Flags(),
	})
	if err != nil {
		return nil, 0, err
	}
	rglog.Logger().Debug("view allocator: created", "label", r.Label(), "hash", key)
	return r, key, nil
}

// Recycle returns r to the pool under hash, or under HashOf(r) if hash is 0.
// After Close the resource is destroyed instead.
func (a *ViewAllocator) Recycle(r *Resource, hash uint64) {
	if r == nil {
		return
	}
	if hash == 0 {
		hash = HashOf(r)
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		r.Destroy()
		return
	}
	a.pool[hash] = append(a.pool[hash], r)
	a.stats.Pooled++
	a.mu.Unlock()
}

// Stats returns a snapshot of pool activity.
func (a *ViewAllocator) Stats() AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Close destroys every pooled resource.
func (a *ViewAllocator) Close() {
	a.mu.Lock()
	pool := a.pool
	a.pool = make(map[uint64][]*Resource)
	a.stats.Pooled = 0
	a.closed = true
	a.mu.Unlock()

	for _, stack := range pool {
		for _, r := range stack {
			r.Destroy()
		}
	}
}
