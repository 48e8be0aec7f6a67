// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package constbuf

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
)

// ConstantBuffer is one region of an Allocator's arena.
type ConstantBuffer struct {
	a        *Allocator
	offset   uint64
	size     uint64
	released bool
}

// New allocates a constant buffer of size bytes.
func New(a *Allocator, size uint64) *ConstantBuffer {
	return &ConstantBuffer{a: a, offset: a.Alloc(size), size: size}
}

// Offset returns the region's offset in the arena buffer.
func (c *ConstantBuffer) Offset() uint64 { return c.offset }

// Size returns the requested size.
func (c *ConstantBuffer) Size() uint64 { return c.size }

// Write stores data at the start of the region.
func (c *ConstantBuffer) Write(data []byte) {
	c.WriteAt(0, data)
}

// WriteAt stores data at off within the region.
func (c *ConstantBuffer) WriteAt(off uint64, data []byte) {
	c.check("WriteAt")
	if off+uint64(len(data)) > c.size {
		panic(errors.AssertionFailedf("constbuf: %d bytes at %d overflow a %d-byte buffer", len(data), off, c.size))
	}
	c.a.Write(c.offset+off, data)
}

// Bytes returns a copy of the region's current contents.
func (c *ConstantBuffer) Bytes() []byte {
	c.check("Bytes")
	return c.a.Read(c.offset, c.size)
}

// Binding returns the bind-group resource for the region.
func (c *ConstantBuffer) Binding() gputypes.BufferBinding {
	c.check("Binding")
	return gputypes.BufferBinding{
		Buffer: c.a.buffer.NativeHandle(),
		Offset: c.offset,
		Size:   c.size,
	}
}

// Release returns the region to the allocator.
func (c *ConstantBuffer) Release() {
	c.check("Release")
	c.released = true
	c.a.Dealloc(c.offset, c.size)
}

func (c *ConstantBuffer) check(op string) {
	if c.released {
		panic(errors.AssertionFailedf("constbuf: %s on a released buffer at %d", op, c.offset))
	}
}
