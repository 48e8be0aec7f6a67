// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package constbuf sub-allocates per-draw constant data from one uniform
// buffer.
//
// Allocations are whole 256-byte slots. Freed regions go to a free list
// bucketed by slot count; a request takes the first non-empty bucket at or
// above its own count and returns the excess to the smaller bucket. When no
// bucket fits, the high-water cursor advances. Running past the end of the
// buffer is fatal.
//
// Writes land in a CPU shadow of the buffer and reach the GPU on Flush,
// one upload per dirty range. At most maxDirtyRanges ranges are kept; past
// that the two closest ranges are merged.
// The allocator belongs to the submission goroutine.
package constbuf

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/internal/rglog"
	"github.com/gogpu/rendergraph/internal/threadcheck"
)

// SlotSize is the allocation granularity, the hardware constant buffer
// alignment.
const SlotSize = 256

// DefaultCapacity is the arena size used when none is given.
const DefaultCapacity = 4 << 20

const maxDirtyRanges = 8

// span is a half-open byte range of the arena.
type span struct{ lo, hi uint64 }

// Allocator is a bucketed free-list allocator over one uniform buffer.
type Allocator struct {
	device   hal.Device
	queue    hal.Queue
	buffer   hal.Buffer
	capacity uint64

	shadow    []byte
	free      [][]uint64
	live      map[uint64]int
	highWater uint64
	inUse     uint64

	dirty []span

	guard threadcheck.Guard
}

// NewAllocator creates the arena buffer. A capacity of 0 selects
// DefaultCapacity; other values are rounded up to a whole slot.
func NewAllocator(device hal.Device, queue hal.Queue, capacity uint64) (*Allocator, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	capacity = roundUp(capacity)
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "constant_buffer_arena",
		Size:  capacity,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, errors.Wrap(err, "constbuf: create arena buffer")
	}
	rglog.Logger().Debug("constbuf: arena created", "bytes", capacity)
	return &Allocator{
		device:   device,
		queue:    queue,
		buffer:   buf,
		capacity: capacity,
		shadow:   make([]byte, capacity),
		live:     make(map[uint64]int),
	}, nil
}

func roundUp(n uint64) uint64 {
	return (n + SlotSize - 1) &^ (SlotSize - 1)
}

func slotsFor(size uint64) int {
	if size == 0 {
		return 1
	}
	return int(roundUp(size) / SlotSize) //nolint:gosec // bounded by capacity
}

// Buffer returns the arena buffer.
func (a *Allocator) Buffer() hal.Buffer { return a.buffer }

// Capacity returns the arena size in bytes.
func (a *Allocator) Capacity() uint64 { return a.capacity }

// HighWater returns the end of the highest region ever handed out.
func (a *Allocator) HighWater() uint64 { return a.highWater }

// InUse returns the bytes currently allocated.
func (a *Allocator) InUse() uint64 { return a.inUse }

// Alloc reserves size bytes, rounded up to whole slots, and returns the
// region's offset in the arena.
func (a *Allocator) Alloc(size uint64) uint64 {
	a.guard.Enter("constbuf.Alloc")
	defer a.guard.Exit()

	n := slotsFor(size)
	for c := n; c < len(a.free); c++ {
		bucket := a.free[c]
		if len(bucket) == 0 {
			continue
		}
		off := bucket[len(bucket)-1]
		a.free[c] = bucket[:len(bucket)-1]
		if c > n {
			a.push(off+uint64(n)*SlotSize, c-n)
		}
		a.inUse += uint64(n) * SlotSize
		a.live[off] = n
		return off
	}

	bytes := uint64(n) * SlotSize
	if a.highWater+bytes > a.capacity {
		panic(errors.AssertionFailedf("constbuf: arena exhausted: %d bytes requested, %d of %d used",
			size, a.highWater, a.capacity))
	}
	off := a.highWater
	a.highWater += bytes
	a.inUse += bytes
	a.live[off] = n
	return off
}

// Dealloc returns a region obtained from Alloc with the same size.
// Freeing a region twice, or with a size of a different slot count, is
// fatal.
func (a *Allocator) Dealloc(offset, size uint64) {
	a.guard.Enter("constbuf.Dealloc")
	defer a.guard.Exit()

	n := slotsFor(size)
	if offset%SlotSize != 0 || offset+uint64(n)*SlotSize > a.highWater {
		panic(errors.AssertionFailedf("constbuf: dealloc of [%d,+%d) outside allocated arena", offset, size))
	}
	got, ok := a.live[offset]
	if !ok {
		panic(errors.AssertionFailedf("constbuf: dealloc of [%d,+%d) not allocated (double free?)", offset, size))
	}
	if got != n {
		panic(errors.AssertionFailedf("constbuf: dealloc of [%d,+%d) is %d slots, allocated with %d", offset, size, n, got))
	}
	delete(a.live, offset)
	a.push(offset, n)
	a.inUse -= uint64(n) * SlotSize
}

func (a *Allocator) push(offset uint64, n int) {
	if n >= len(a.free) {
		a.free = append(a.free, make([][]uint64, n+1-len(a.free))...)
	}
	a.free[n] = append(a.free[n], offset)
}

// Write copies data into the shadow at offset and marks it for upload.
func (a *Allocator) Write(offset uint64, data []byte) {
	end := offset + uint64(len(data))
	if end > a.capacity {
		panic(errors.AssertionFailedf("constbuf: write of %d bytes at %d past arena end %d", len(data), offset, a.capacity))
	}
	copy(a.shadow[offset:end], data)
	if end > offset {
		a.markDirty(offset, end)
	}
}

// markDirty adds [lo,hi) to the sorted dirty list, merging it with every
// range it overlaps or touches.
func (a *Allocator) markDirty(lo, hi uint64) {
	i := 0
	for i < len(a.dirty) && a.dirty[i].hi < lo {
		i++
	}
	j := i
	for j < len(a.dirty) && a.dirty[j].lo <= hi {
		lo = min(lo, a.dirty[j].lo)
		hi = max(hi, a.dirty[j].hi)
		j++
	}
	a.dirty = slices.Replace(a.dirty, i, j, span{lo, hi})
	if len(a.dirty) <= maxDirtyRanges {
		return
	}
	best := 1
	for k := 2; k < len(a.dirty); k++ {
		if a.dirty[k].lo-a.dirty[k-1].hi < a.dirty[best].lo-a.dirty[best-1].hi {
			best = k
		}
	}
	a.dirty[best-1].hi = a.dirty[best].hi
	a.dirty = slices.Delete(a.dirty, best, best+1)
}

// Read returns a copy of n bytes of the shadow at offset.
func (a *Allocator) Read(offset, n uint64) []byte {
	if offset+n > a.capacity {
		panic(errors.AssertionFailedf("constbuf: read of %d bytes at %d past arena end %d", n, offset, a.capacity))
	}
	out := make([]byte, n)
	copy(out, a.shadow[offset:offset+n])
	return out
}

// Flush uploads the ranges written since the last Flush. A failed upload
// is fatal.
func (a *Allocator) Flush() {
	for _, d := range a.dirty {
		if err := a.queue.WriteBuffer(a.buffer, d.lo, a.shadow[d.lo:d.hi]); err != nil {
			panic(errors.Wrapf(err, "constbuf: flush of [%d,%d)", d.lo, d.hi))
		}
	}
	a.dirty = a.dirty[:0]
}

// Destroy releases the arena buffer.
func (a *Allocator) Destroy() {
	if a.buffer != nil {
		a.device.DestroyBuffer(a.buffer)
		a.buffer = nil
	}
}
