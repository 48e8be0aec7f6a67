// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/internal/gputest"
	"github.com/gogpu/rendergraph/internal/parallel"
	"github.com/gogpu/rendergraph/resource"
)

// passDevice records the depth-stencil attachment of every render pass
// begun on its encoders.
type passDevice struct {
	hal.Device
	mu   sync.Mutex
	atts []hal.RenderPassDepthStencilAttachment
}

func (d *passDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &passEncoder{CommandEncoder: enc, d: d}, nil
}

type passEncoder struct {
	hal.CommandEncoder
	d *passDevice
}

func (e *passEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	if desc.DepthStencilAttachment != nil {
		e.d.mu.Lock()
		e.d.atts = append(e.d.atts, *desc.DepthStencilAttachment)
		e.d.mu.Unlock()
	}
	return e.CommandEncoder.BeginRenderPass(desc)
}

func TestDepthStencilOpsFollowFormat(t *testing.T) {
	tests := []struct {
		format  gputypes.TextureFormat
		stencil bool
	}{
		{gputypes.TextureFormatDepth16Unorm, false},
		{gputypes.TextureFormatDepth24Plus, false},
		{gputypes.TextureFormatDepth32Float, false},
		{gputypes.TextureFormatDepth24PlusStencil8, true},
		{gputypes.TextureFormatDepth32FloatStencil8, true},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			noopDevice, halQueue := gputest.NoopDevice(t)
			device := &passDevice{Device: noopDevice}
			exec := parallel.NewExecutor(0)
			t.Cleanup(exec.Close)
			q, err := NewQueue(device, halQueue, exec)
			if err != nil {
				t.Fatalf("NewQueue: %v", err)
			}
			t.Cleanup(q.Destroy)
			r, err := resource.New(device, nil, resource.Desc{
				Label: "depth", Width: 8, Height: 8,
				Format: tt.format, Flags: resource.AllowDepthStencil,
			})
			if err != nil {
				t.Fatalf("resource.New: %v", err)
			}
			t.Cleanup(r.Destroy)

			q.AddCommand(func(l *List) {
				l.ClearDepthStencil(r, 1, 7)
				l.DiscardResource(r)
			}, nil)
			q.Execute()

			if len(device.atts) != 2 {
				t.Fatalf("recorded %d depth-stencil passes, want 2", len(device.atts))
			}
			cleared, discarded := device.atts[0], device.atts[1]
			if cleared.DepthLoadOp != gputypes.LoadOpClear || cleared.DepthClearValue != 1 {
				t.Errorf("clear depth ops = %v, %v", cleared.DepthLoadOp, cleared.DepthClearValue)
			}
			if discarded.DepthStoreOp != gputypes.StoreOpDiscard {
				t.Errorf("discard DepthStoreOp = %v", discarded.DepthStoreOp)
			}
			if tt.stencil {
				if cleared.StencilLoadOp != gputypes.LoadOpClear || cleared.StencilClearValue != 7 {
					t.Errorf("clear stencil ops = %v, %d", cleared.StencilLoadOp, cleared.StencilClearValue)
				}
				if discarded.StencilStoreOp != gputypes.StoreOpDiscard {
					t.Errorf("discard StencilStoreOp = %v", discarded.StencilStoreOp)
				}
				return
			}
			for i, att := range device.atts {
				if att.StencilLoadOp != gputypes.LoadOpUndefined || att.StencilStoreOp != gputypes.StoreOpUndefined || att.StencilClearValue != 0 {
					t.Errorf("pass %d on a depth-only format has stencil ops %+v", i, att)
				}
			}
		})
	}
}
