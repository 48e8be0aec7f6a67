// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/constbuf"
	"github.com/gogpu/rendergraph/resource"
)

// Frame is the per-frame recording scope returned by BeginFrame. It is
// valid until EndFrame.
type Frame struct {
	r     *Renderer
	index uint64
	slot  int
	graph *rendergraph.Graph
	comp  *rendergraph.Graph

	retired []func()
}

// Index returns the frame number.
func (f *Frame) Index() uint64 { return f.index }

// Slot returns the back-buffer index the frame renders to.
func (f *Frame) Slot() int { return f.slot }

// Renderer returns the renderer that began the frame.
func (f *Frame) Renderer() *Renderer { return f.r }

// Graph returns the graphics render graph.
func (f *Frame) Graph() *rendergraph.Graph { return f.graph }

// Compute returns the compute render graph. Its work is submitted before
// the graphics graph, which waits for it.
func (f *Frame) Compute() *rendergraph.Graph { return f.comp }

// BackBuffer returns the back buffer the frame renders to. EndFrame
// transitions it to Present.
func (f *Frame) BackBuffer() *resource.Resource {
	return f.r.swap.BackBuffer(f.slot)
}

// Retire defers fn until the GPU has finished this frame, that is until
// the next BeginFrame on the same back buffer.
func (f *Frame) Retire(fn func()) {
	f.retired = append(f.retired, fn)
}

// Transient returns a pooled resource handle released when the frame
// retires.
func (f *Frame) Transient(desc resource.HandleDesc) *resource.Handle {
	h := resource.NewHandle(f.r.views, desc)
	f.Retire(h.Release)
	return h
}

// ConstantBuffer allocates size bytes of constant memory released when the
// frame retires.
func (f *Frame) ConstantBuffer(size uint64) *constbuf.ConstantBuffer {
	cb := constbuf.New(f.r.constants, size)
	f.Retire(cb.Release)
	return cb
}
