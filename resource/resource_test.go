// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/descriptor"
	"github.com/gogpu/rendergraph/internal/gputest"
)

func TestStateUsage(t *testing.T) {
	tests := []struct {
		state State
		want  gputypes.TextureUsage
	}{
		{Common, 0},
		{Present, 0},
		{RenderTarget, gputypes.TextureUsageRenderAttachment},
		{DepthWrite, gputypes.TextureUsageRenderAttachment},
		{UnorderedAccess, gputypes.TextureUsageStorageBinding},
		{PixelShaderResource, gputypes.TextureUsageTextureBinding},
		{CopyDest, gputypes.TextureUsageCopyDst},
		{CopySource, gputypes.TextureUsageCopySrc},
	}
	for _, tt := range tests {
		if got := tt.state.Usage(); got != tt.want {
			t.Errorf("%s.Usage() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestResourceViews(t *testing.T) {
	device, _ := gputest.NoopDevice(t)
	heaps := descriptor.NewHeaps(descriptor.Capacities{RTV: 4, DSV: 4, CBVSRVUAV: 8})

	r, err := New(device, heaps, Desc{
		Label:  "albedo",
		Width:  64,
		Height: 32,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Flags:  AllowRenderTarget,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rtv := r.RTV()
	if !rtv.Handle.IsValid() || rtv.TextureView == nil {
		t.Fatalf("RTV() = %+v, want a bound slot", rtv)
	}
	if again := r.RTV(); again != rtv {
		t.Errorf("second RTV() = %+v, want cached %+v", again, rtv)
	}
	if heaps.Heap(descriptor.RTV).View(rtv.Handle) != rtv.TextureView {
		t.Error("RTV heap slot not bound to the view")
	}
	srv := r.SRV()
	if srv.Handle.Kind != descriptor.CBVSRVUAV {
		t.Errorf("SRV heap = %s, want CBV_SRV_UAV", srv.Handle.Kind)
	}

	gputest.MustPanic(t, "DSV requested without AllowDepthStencil", func() { r.DSV() })
	gputest.MustPanic(t, "UAV requested without AllowUnorderedAccess", func() { r.UAV() })

	r.Destroy()
	if n := heaps.Heap(descriptor.RTV).Len(); n != 0 {
		t.Errorf("RTV heap Len() = %d after Destroy, want 0", n)
	}
	if n := heaps.Heap(descriptor.CBVSRVUAV).Len(); n != 0 {
		t.Errorf("CBV_SRV_UAV heap Len() = %d after Destroy, want 0", n)
	}
	gputest.MustPanic(t, "after Destroy", func() { r.RTV() })
	r.Destroy()
}

func TestResourceDenyShaderResource(t *testing.T) {
	device, _ := gputest.NoopDevice(t)
	r, err := New(device, nil, Desc{
		Label:  "depth",
		Width:  8,
		Height: 8,
		Format: gputypes.TextureFormatDepth24PlusStencil8,
		Flags:  AllowDepthStencil | DenyShaderResource,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Destroy()

	if v := r.DSV(); v.Handle.IsValid() {
		t.Errorf("DSV without heaps got slot %+v", v.Handle)
	}
	gputest.MustPanic(t, "denies shader access", func() { r.SRV() })
	if r.SRVFormat() != gputypes.TextureFormatDepth24Plus {
		t.Errorf("SRVFormat() = %v, want Depth24Plus", r.SRVFormat())
	}
}

// viewDevice records every texture view descriptor.
type viewDevice struct {
	hal.Device
	views []hal.TextureViewDescriptor
}

func (d *viewDevice) CreateTextureView(tex hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	d.views = append(d.views, *desc)
	return d.Device.CreateTextureView(tex, desc)
}

func TestDepthFormatViews(t *testing.T) {
	tests := []struct {
		format  gputypes.TextureFormat
		srv     gputypes.TextureFormat
		stencil bool
	}{
		{gputypes.TextureFormatDepth16Unorm, gputypes.TextureFormatDepth16Unorm, false},
		{gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24Plus, false},
		{gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth24Plus, true},
		{gputypes.TextureFormatDepth32Float, gputypes.TextureFormatDepth32Float, false},
		{gputypes.TextureFormatDepth32FloatStencil8, gputypes.TextureFormatDepth32Float, true},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if !IsDepthFormat(tt.format) {
				t.Errorf("IsDepthFormat(%v) = false", tt.format)
			}
			if got := HasStencil(tt.format); got != tt.stencil {
				t.Errorf("HasStencil(%v) = %v, want %v", tt.format, got, tt.stencil)
			}
			noopDevice, _ := gputest.NoopDevice(t)
			device := &viewDevice{Device: noopDevice}
			r, err := New(device, nil, Desc{
				Label: "depth", Width: 8, Height: 8,
				Format: tt.format, Flags: AllowDepthStencil,
			})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer r.Destroy()

			if got := r.SRVFormat(); got != tt.srv {
				t.Errorf("SRVFormat() = %v, want %v", got, tt.srv)
			}
			r.DSV()
			r.SRV()
			if len(device.views) != 2 {
				t.Fatalf("created %d views, want 2", len(device.views))
			}
			dsv, srv := device.views[0], device.views[1]
			if dsv.Format != tt.format || dsv.Aspect != gputypes.TextureAspectAll {
				t.Errorf("DSV format %v aspect %v, want %v all", dsv.Format, dsv.Aspect, tt.format)
			}
			if srv.Format != tt.srv || srv.Aspect != gputypes.TextureAspectDepthOnly {
				t.Errorf("SRV format %v aspect %v, want %v depth-only", srv.Format, srv.Aspect, tt.srv)
			}
		})
	}

	if IsDepthFormat(gputypes.TextureFormatRGBA8Unorm) || HasStencil(gputypes.TextureFormatRGBA8Unorm) {
		t.Error("RGBA8Unorm reported as depth or stencil")
	}
}

func TestResourceZeroExtent(t *testing.T) {
	device, _ := gputest.NoopDevice(t)
	if _, err := New(device, nil, Desc{Label: "bad", Width: 0, Height: 4}); err == nil {
		t.Fatal("New with zero width succeeded")
	}
}

func TestResourceMipStates(t *testing.T) {
	device, _ := gputest.NoopDevice(t)
	r, err := New(device, nil, Desc{
		Label: "mips", Width: 16, Height: 16, MipLevels: 5,
		Format: gputypes.TextureFormatRGBA8Unorm, Initial: CopyDest,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Destroy()
	if r.Subresources() != 5 {
		t.Fatalf("Subresources() = %d, want 5", r.Subresources())
	}
	if s, ok := r.Uniform(); !ok || s != CopyDest {
		t.Errorf("Uniform() = %s, %v, want COPY_DEST, true", s, ok)
	}
}
