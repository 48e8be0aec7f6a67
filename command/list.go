// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/descriptor"
	"github.com/gogpu/rendergraph/resource"
)

// NumAllocators is the number of encoders each List cycles through.
// One can be recorded while up to three are still executing.
const NumAllocators = 4

type slot struct {
	encoder hal.CommandEncoder
	cmdBuf  hal.CommandBuffer
	// fenceValue is the queue fence value of the slot's last submission.
	fenceValue uint64
}

// Stats counts the work recorded on a List.
type Stats struct {
	Resets         uint64
	BarrierFlushes uint64
	BarrierEntries uint64
	Clears         uint64
	Discards       uint64
	Draws          uint64
	Dispatches     uint64
}

func (s *Stats) add(o Stats) {
	s.Resets += o.Resets
	s.BarrierFlushes += o.BarrierFlushes
	s.BarrierEntries += o.BarrierEntries
	s.Clears += o.Clears
	s.Discards += o.Discards
	s.Draws += o.Draws
	s.Dispatches += o.Dispatches
}

// DrawCall is one draw inside a render pass.
type DrawCall struct {
	Pipeline     hal.RenderPipeline
	BindGroups   []hal.BindGroup
	VertexBuffer hal.Buffer
	IndexBuffer  hal.Buffer
	IndexFormat  gputypes.IndexFormat
	// Count is the vertex count, or the index count when IndexBuffer is set.
	Count     uint32
	Instances uint32
}

// DispatchCall is one compute dispatch.
type DispatchCall struct {
	Pipeline   hal.ComputePipeline
	BindGroups []hal.BindGroup
	X, Y, Z    uint32
}

// List is a command list: a ring of NumAllocators encoders plus a pending
// barrier batch.
//
// A List is used by one recording task at a time, between Reset and Close.
type List struct {
	q     *Queue
	index int
	label string

	slots [NumAllocators]slot
	cur   int
	open  bool
	ready bool

	barriers resource.BarrierBatch
	heap     *descriptor.Heap
	stats    Stats
}

func newList(q *Queue, index int) *List {
	return &List{
		q:     q,
		index: index,
		label: fmt.Sprintf("%s/list%d", q.cfg.label, index),
		cur:   NumAllocators - 1,
	}
}

// Index returns the list's position in its queue's pool.
func (l *List) Index() int { return l.index }

// Label returns the list label.
func (l *List) Label() string { return l.label }

// Stats returns the counters accumulated since the list was created.
func (l *List) Stats() Stats { return l.stats }

// Reset moves to the next encoder of the ring, waiting for the GPU to retire
// that encoder's previous submission, and begins recording.
func (l *List) Reset() {
	if l.open {
		panic(errors.AssertionFailedf("command: %s reset while recording", l.label))
	}
	if l.ready {
		panic(errors.AssertionFailedf("command: %s reset before its commands were executed", l.label))
	}
	l.cur = (l.cur + 1) % NumAllocators
	s := &l.slots[l.cur]
	if s.fenceValue > 0 {
		l.q.WaitForValue(s.fenceValue)
	}
	if s.cmdBuf != nil {
		l.q.device.FreeCommandBuffer(s.cmdBuf)
		s.cmdBuf = nil
	}
	if s.encoder == nil {
		enc, err := l.q.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
			Label: fmt.Sprintf("%s/alloc%d", l.label, l.cur),
		})
		if err != nil {
			panic(errors.Wrapf(err, "command: %s: create encoder", l.label))
		}
		s.encoder = enc
	}
	if err := s.encoder.BeginEncoding(l.label); err != nil {
		panic(errors.Wrapf(err, "command: %s: begin encoding", l.label))
	}
	l.open = true
	l.heap = nil
	l.barriers.Reset()
	l.stats.Resets++
}

// Close flushes pending barriers and ends recording. The commands are
// submitted by the queue's next Execute.
func (l *List) Close() {
	l.mustOpen("Close")
	l.FlushResourceBarriers()
	s := &l.slots[l.cur]
	cb, err := s.encoder.EndEncoding()
	if err != nil {
		panic(errors.Wrapf(err, "command: %s: end encoding", l.label))
	}
	s.cmdBuf = cb
	l.open = false
	l.ready = true
}

// discard abandons the current recording.
func (l *List) discard() {
	if !l.open {
		return
	}
	l.slots[l.cur].encoder.DiscardEncoding()
	l.barriers.Reset()
	l.open = false
}

func (l *List) mustOpen(op string) {
	if !l.open {
		panic(errors.AssertionFailedf("command: %s.%s called outside Reset/Close", l.label, op))
	}
}

// Encoder returns the HAL encoder being recorded.
func (l *List) Encoder() hal.CommandEncoder {
	l.mustOpen("Encoder")
	return l.slots[l.cur].encoder
}

// SetDescriptorHeap records the shader-visible heap for this recording.
func (l *List) SetDescriptorHeap(h *descriptor.Heap) { l.heap = h }

// DescriptorHeap returns the heap set for this recording, or nil.
func (l *List) DescriptorHeap() *descriptor.Heap { return l.heap }

// TransitionBarrier queues a transition of r to state. The resource's
// tracked state changes now; the HAL sees it at the next flush, or
// immediately when autoflush is set.
//
// Inside a graph pass body r must not be a resource the graph tracks.
func (l *List) TransitionBarrier(r *resource.Resource, state resource.State, sub int, autoflush bool) {
	l.barriers.Transition(r, state, sub)
	if autoflush {
		l.FlushResourceBarriers()
	}
}

// UAVBarrier queues a UAV barrier on r.
func (l *List) UAVBarrier(r *resource.Resource) { l.barriers.UAV(r) }

// AddBarriers queues a batch whose states were resolved elsewhere.
func (l *List) AddBarriers(b *resource.BarrierBatch) { l.barriers.Merge(b) }

// PendingBarriers returns the number of queued barrier entries.
func (l *List) PendingBarriers() int { return l.barriers.Len() }

// FlushResourceBarriers submits every queued barrier in one HAL call.
func (l *List) FlushResourceBarriers() {
	n := l.barriers.Len()
	if n == 0 {
		return
	}
	l.mustOpen("FlushResourceBarriers")
	l.slots[l.cur].encoder.TransitionTextures(halBarriers(&l.barriers))
	l.stats.BarrierFlushes++
	l.stats.BarrierEntries += uint64(n)
	l.q.cfg.trace.Record(l.label, &l.barriers)
	l.barriers.Reset()
}

// halBarriers converts a batch to HAL barriers. HAL barriers cover the whole
// texture, so adjacent per-subresource entries of one resource with the
// same target are merged.
func halBarriers(b *resource.BarrierBatch) []hal.TextureBarrier {
	ts := b.Transitions()
	out := make([]hal.TextureBarrier, 0, len(ts)+len(b.UAVs()))
	var prev *resource.Transition
	for i := range ts {
		t := &ts[i]
		if prev != nil && prev.Resource == t.Resource && prev.After == t.After &&
			prev.Subresource != resource.AllSubresources && t.Subresource != resource.AllSubresources {
			out[len(out)-1].Usage.OldUsage |= t.Before.Usage()
			continue
		}
		out = append(out, hal.TextureBarrier{
			Texture: t.Resource.Texture(),
			Usage: hal.TextureUsageTransition{
				OldUsage: t.Before.Usage(),
				NewUsage: t.After.Usage(),
			},
		})
		prev = t
	}
	for _, r := range b.UAVs() {
		out = append(out, hal.TextureBarrier{
			Texture: r.Texture(),
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageStorageBinding,
				NewUsage: gputypes.TextureUsageStorageBinding,
			},
		})
	}
	return out
}

// ClearRenderTarget clears r's render target view to c.
func (l *List) ClearRenderTarget(r *resource.Resource, c gputypes.Color) {
	l.mustOpen("ClearRenderTarget")
	l.FlushResourceBarriers()
	rp := l.slots[l.cur].encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "clear " + r.Label(),
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       r.RTV().TextureView,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: c,
		}},
	})
	rp.End()
	l.stats.Clears++
}

// ClearDepthStencil clears r's depth-stencil view. stencil is ignored
// when the format has no stencil aspect.
func (l *List) ClearDepthStencil(r *resource.Resource, depth float32, stencil uint32) {
	l.mustOpen("ClearDepthStencil")
	l.FlushResourceBarriers()
	att := &hal.RenderPassDepthStencilAttachment{
		View:            r.DSV().TextureView,
		DepthLoadOp:     gputypes.LoadOpClear,
		DepthStoreOp:    gputypes.StoreOpStore,
		DepthClearValue: depth,
	}
	if resource.HasStencil(r.Desc().Format) {
		att.StencilLoadOp = gputypes.LoadOpClear
		att.StencilStoreOp = gputypes.StoreOpStore
		att.StencilClearValue = stencil
	}
	rp := l.slots[l.cur].encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:                  "clear " + r.Label(),
		DepthStencilAttachment: att,
	})
	rp.End()
	l.stats.Clears++
}

// Clear applies r's clear value through whichever attachment it supports.
func (l *List) Clear(r *resource.Resource, v resource.ClearValue) {
	switch {
	case r.Desc().Flags&resource.AllowDepthStencil != 0:
		l.ClearDepthStencil(r, v.Depth, v.Stencil)
	case r.Desc().Flags&resource.AllowRenderTarget != 0:
		l.ClearRenderTarget(r, v.Color)
	default:
		panic(errors.AssertionFailedf("command: clear of %q, which has no render target or depth-stencil view", r.Label()))
	}
}

// DiscardResource marks r's contents undefined. Attachments are passed
// through a render pass that stores nothing; other resources need no work.
func (l *List) DiscardResource(r *resource.Resource) {
	l.mustOpen("DiscardResource")
	l.FlushResourceBarriers()
	enc := l.slots[l.cur].encoder
	flags := r.Desc().Flags
	switch {
	case flags&resource.AllowDepthStencil != 0:
		enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label:                  "discard " + r.Label(),
			DepthStencilAttachment: discardDepthStencil(r),
		}).End()
	case flags&resource.AllowRenderTarget != 0:
		enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "discard " + r.Label(),
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:    r.RTV().TextureView,
				LoadOp:  gputypes.LoadOpClear,
				StoreOp: gputypes.StoreOpDiscard,
			}},
		}).End()
	}
	l.stats.Discards++
}

// RenderPass records a render pass. Pending barriers are flushed first.
func (l *List) RenderPass(desc *hal.RenderPassDescriptor, fn func(hal.RenderPassEncoder)) {
	l.mustOpen("RenderPass")
	l.FlushResourceBarriers()
	rp := l.slots[l.cur].encoder.BeginRenderPass(desc)
	fn(rp)
	rp.End()
}

// ComputePass records a compute pass. Pending barriers are flushed first.
func (l *List) ComputePass(label string, fn func(hal.ComputePassEncoder)) {
	l.mustOpen("ComputePass")
	l.FlushResourceBarriers()
	pass := l.slots[l.cur].encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	fn(pass)
	pass.End()
}

// Draw records dc into an open render pass.
func (l *List) Draw(rp hal.RenderPassEncoder, dc DrawCall) {
	rp.SetPipeline(dc.Pipeline)
	for i, bg := range dc.BindGroups {
		rp.SetBindGroup(uint32(i), bg, nil) //nolint:gosec // few bind groups
	}
	if dc.VertexBuffer != nil {
		rp.SetVertexBuffer(0, dc.VertexBuffer, 0)
	}
	inst := max(dc.Instances, 1)
	if dc.IndexBuffer != nil {
		rp.SetIndexBuffer(dc.IndexBuffer, dc.IndexFormat, 0)
		rp.DrawIndexed(dc.Count, inst, 0, 0, 0)
	} else {
		rp.Draw(dc.Count, inst, 0, 0)
	}
	l.stats.Draws++
}

// Dispatch records dc into an open compute pass.
func (l *List) Dispatch(pass hal.ComputePassEncoder, dc DispatchCall) {
	pass.SetPipeline(dc.Pipeline)
	for i, bg := range dc.BindGroups {
		pass.SetBindGroup(uint32(i), bg, nil) //nolint:gosec // few bind groups
	}
	pass.Dispatch(max(dc.X, 1), max(dc.Y, 1), max(dc.Z, 1))
	l.stats.Dispatches++
}

// destroy frees every encoder's command buffer. The queue must be idle.
func (l *List) destroy() {
	l.discard()
	for i := range l.slots {
		s := &l.slots[i]
		if s.cmdBuf != nil {
			l.q.device.FreeCommandBuffer(s.cmdBuf)
			s.cmdBuf = nil
		}
		s.encoder = nil
	}
}

func discardDepthStencil(r *resource.Resource) *hal.RenderPassDepthStencilAttachment {
	att := &hal.RenderPassDepthStencilAttachment{
		View:         r.DSV().TextureView,
		DepthLoadOp:  gputypes.LoadOpClear,
		DepthStoreOp: gputypes.StoreOpDiscard,
	}
	if resource.HasStencil(r.Desc().Format) {
		att.StencilLoadOp = gputypes.LoadOpClear
		att.StencilStoreOp = gputypes.StoreOpDiscard
	}
	return att
}
