// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource tracks GPU textures, their per-subresource states and the
// views handed to passes.
//
// A Resource owns one HAL texture and a state per mip level. BarrierBatch
// turns state requests into transition entries, eliding no-ops and
// collapsing repeated requests. ViewAllocator pools transient resources by
// shape, and Handle is the graph-scoped reference that resolves a pooled
// resource on first use.
package resource

import (
	"fmt"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/descriptor"
	"github.com/gogpu/rendergraph/internal/rglog"
)

// AllSubresources selects every subresource of a resource.
const AllSubresources = -1

// Flags control which views a resource can produce.
type Flags uint32

const (
	AllowRenderTarget Flags = 1 << iota
	AllowDepthStencil
	AllowUnorderedAccess
	DenyShaderResource
	// BackBuffer places the render target view in the back-buffer heap.
	BackBuffer
)

// ViewType is the primary view of a transient resource.
type ViewType uint8

const (
	ViewUnknown ViewType = iota
	ViewRenderTarget
	ViewDepthStencil
	ViewUnorderedAccess
)

// String returns the view type name.
func (v ViewType) String() string {
	switch v {
	case ViewRenderTarget:
		return "RenderTarget"
	case ViewDepthStencil:
		return "DepthStencil"
	case ViewUnorderedAccess:
		return "UnorderedAccess"
	default:
		return "Unknown"
	}
}

// Flags returns the creation flags a resource of this view type needs.
func (v ViewType) Flags() Flags {
	switch v {
	case ViewRenderTarget:
		return AllowRenderTarget
	case ViewDepthStencil:
		return AllowDepthStencil
	case ViewUnorderedAccess:
		return AllowUnorderedAccess
	default:
		return 0
	}
}

// ClearValue is the value applied by a clear init action.
type ClearValue struct {
	Color   gputypes.Color
	Depth   float32
	Stencil uint32
}

// Desc describes a texture resource.
type Desc struct {
	Label     string
	Width     uint32
	Height    uint32
	Depth     uint32
	MipLevels uint32
	Format    gputypes.TextureFormat
	Flags     Flags
	Clear     ClearValue
	// Initial is the state every subresource starts in.
	Initial State
}

func (d *Desc) normalize() {
	if d.Depth == 0 {
		d.Depth = 1
	}
	if d.MipLevels == 0 {
		d.MipLevels = 1
	}
}

// Usage returns the HAL usage the resource is created with.
func (d *Desc) Usage() gputypes.TextureUsage {
	u := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if d.Flags&(AllowRenderTarget|AllowDepthStencil) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if d.Flags&AllowUnorderedAccess != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	if d.Flags&DenyShaderResource == 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	return u
}

// ViewKind selects one of a resource's views.
type ViewKind uint8

const (
	RTV ViewKind = iota
	DSV
	SRV
	UAV

	numViewKinds
)

func (k ViewKind) String() string {
	return [...]string{"RTV", "DSV", "SRV", "UAV"}[k]
}

// View is a HAL texture view plus the descriptor slot it is published in.
type View struct {
	Handle      descriptor.Handle
	TextureView hal.TextureView
}

// Resource is a GPU texture with per-subresource state tracking.
//
// The state vector is locked on every access, so recording tasks may
// query it and transition resources the graph does not track. Views may
// be requested from recording tasks.
type Resource struct {
	desc    Desc
	device  hal.Device
	heaps   *descriptor.Heaps
	texture hal.Texture
	owned   bool

	stateMu sync.Mutex
	states  []State

	mu        sync.Mutex
	views     [numViewKinds]View
	destroyed bool
}

// New creates a texture and starts tracking it. heaps may be nil, in which
// case views get no descriptor slot.
func New(device hal.Device, heaps *descriptor.Heaps, desc Desc) (*Resource, error) {
	desc.normalize()
	if desc.Width == 0 || desc.Height == 0 {
		return nil, errors.Newf("resource %q: zero extent %dx%d", desc.Label, desc.Width, desc.Height)
	}
	dim := gputypes.TextureDimension2D
	if desc.Depth > 1 {
		dim = gputypes.TextureDimension3D
	}
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.Depth,
		},
		MipLevelCount: desc.MipLevels,
		SampleCount:   1,
		Dimension:     dim,
		Format:        desc.Format,
		Usage:         desc.Usage(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "resource %q: create texture", desc.Label)
	}
	r := newResource(device, heaps, tex, desc)
	r.owned = true
	return r, nil
}

// Wrap tracks a texture the caller owns, such as a swap chain image.
// Destroy releases views and descriptors but leaves the texture alone.
func Wrap(device hal.Device, heaps *descriptor.Heaps, tex hal.Texture, desc Desc) *Resource {
	desc.normalize()
	return newResource(device, heaps, tex, desc)
}

func newResource(device hal.Device, heaps *descriptor.Heaps, tex hal.Texture, desc Desc) *Resource {
	r := &Resource{
		desc:    desc,
		device:  device,
		heaps:   heaps,
		texture: tex,
		states:  make([]State, desc.MipLevels),
	}
	for i := range r.states {
		r.states[i] = desc.Initial
	}
	for i := range r.views {
		r.views[i].Handle = descriptor.Invalid
	}
	return r
}

// Desc returns the resource descriptor.
func (r *Resource) Desc() Desc { return r.desc }

// Label returns the debug label.
func (r *Resource) Label() string { return r.desc.Label }

// Texture returns the HAL texture.
func (r *Resource) Texture() hal.Texture { return r.texture }

// ViewType derives the primary view type from the creation flags.
func (r *Resource) ViewType() ViewType {
	switch {
	case r.desc.Flags&AllowRenderTarget != 0:
		return ViewRenderTarget
	case r.desc.Flags&AllowDepthStencil != 0:
		return ViewDepthStencil
	case r.desc.Flags&AllowUnorderedAccess != 0:
		return ViewUnorderedAccess
	default:
		return ViewUnknown
	}
}

// Subresources returns the number of tracked subresources.
func (r *Resource) Subresources() int { return len(r.states) }

// State returns the tracked state of one subresource.
func (r *Resource) State(sub int) State {
	r.checkSub(sub)
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.states[sub]
}

// States returns a copy of the state vector.
func (r *Resource) States() []State {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return slices.Clone(r.states)
}

// Uniform reports whether every subresource is in the same state.
func (r *Resource) Uniform() (State, bool) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.uniformLocked()
}

func (r *Resource) uniformLocked() (State, bool) {
	s := r.states[0]
	for _, v := range r.states[1:] {
		if v != s {
			return s, false
		}
	}
	return s, true
}

// ResetState forces every subresource into s without emitting a barrier.
// Pooled resources are handed out in their last tracked state instead.
func (r *Resource) ResetState(s State) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	r.resetLocked(s)
}

func (r *Resource) resetLocked(s State) {
	for i := range r.states {
		r.states[i] = s
	}
}

func (r *Resource) checkSub(sub int) {
	if sub < 0 || sub >= len(r.states) {
		panic(errors.AssertionFailedf("resource %q: subresource %d out of range [0,%d)", r.desc.Label, sub, len(r.states)))
	}
}

// SRVFormat returns the format shader-resource views are created with.
// Depth formats are read through their depth aspect, so combined
// depth-stencil formats map to their depth-only companion.
func (r *Resource) SRVFormat() gputypes.TextureFormat {
	switch r.desc.Format {
	case gputypes.TextureFormatDepth24PlusStencil8:
		return gputypes.TextureFormatDepth24Plus
	case gputypes.TextureFormatDepth32FloatStencil8:
		return gputypes.TextureFormatDepth32Float
	}
	return r.desc.Format
}

// IsDepthFormat reports whether f has a depth aspect.
func IsDepthFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth16Unorm,
		gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth32FloatStencil8:
		return true
	}
	return false
}

// HasStencil reports whether f has a stencil aspect.
func HasStencil(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatDepth24PlusStencil8 ||
		f == gputypes.TextureFormatDepth32FloatStencil8 ||
		f == gputypes.TextureFormatStencil8
}

// RTV returns the render target view. The resource must allow render targets.
func (r *Resource) RTV() View {
	if r.desc.Flags&AllowRenderTarget == 0 {
		panic(errors.AssertionFailedf("resource %q: RTV requested without AllowRenderTarget", r.desc.Label))
	}
	heap := descriptor.RTV
	if r.desc.Flags&BackBuffer != 0 {
		heap = descriptor.BackBufferRTV
	}
	return r.view(RTV, heap, r.desc.Format)
}

// DSV returns the depth-stencil view. The resource must allow depth-stencil.
func (r *Resource) DSV() View {
	if r.desc.Flags&AllowDepthStencil == 0 {
		panic(errors.AssertionFailedf("resource %q: DSV requested without AllowDepthStencil", r.desc.Label))
	}
	return r.view(DSV, descriptor.DSV, r.desc.Format)
}

// SRV returns the shader resource view.
func (r *Resource) SRV() View {
	if r.desc.Flags&DenyShaderResource != 0 {
		panic(errors.AssertionFailedf("resource %q: SRV requested on a resource that denies shader access", r.desc.Label))
	}
	return r.view(SRV, descriptor.CBVSRVUAV, r.SRVFormat())
}

// UAV returns the unordered access view. The resource must allow it.
func (r *Resource) UAV() View {
	if r.desc.Flags&AllowUnorderedAccess == 0 {
		panic(errors.AssertionFailedf("resource %q: UAV requested without AllowUnorderedAccess", r.desc.Label))
	}
	return r.view(UAV, descriptor.CBVSRVUAV, r.desc.Format)
}

func (r *Resource) view(kind ViewKind, heap descriptor.Kind, format gputypes.TextureFormat) View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		panic(errors.AssertionFailedf("resource %q: %s requested after Destroy", r.desc.Label, kind))
	}
	if v := r.views[kind]; v.TextureView != nil {
		return v
	}
	aspect := gputypes.TextureAspectAll
	if kind == SRV && IsDepthFormat(r.desc.Format) {
		aspect = gputypes.TextureAspectDepthOnly
	}
	tv, err := r.device.CreateTextureView(r.texture, &hal.TextureViewDescriptor{
		Label:         fmt.Sprintf("%s %s", r.desc.Label, kind),
		Format:        format,
		Aspect:        aspect,
		BaseMipLevel:  0,
		MipLevelCount: r.desc.MipLevels,
	})
	if err != nil {
		panic(errors.Wrapf(err, "resource %q: create %s", r.desc.Label, kind))
	}
	v := View{Handle: descriptor.Invalid, TextureView: tv}
	if r.heaps != nil {
		v.Handle = r.heaps.Heap(heap).Alloc()
		r.heaps.Heap(heap).Bind(v.Handle, tv)
	}
	r.views[kind] = v
	return v
}

// Destroy releases descriptors and views, and the texture if the resource
// created it. Destroy is idempotent.
func (r *Resource) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.destroyed = true
	for i := range r.views {
		v := r.views[i]
		if v.TextureView == nil {
			continue
		}
		if r.heaps != nil {
			r.heaps.Free(v.Handle)
		}
		r.device.DestroyTextureView(v.TextureView)
		r.views[i] = View{Handle: descriptor.Invalid}
	}
	if r.owned && r.texture != nil {
		r.device.DestroyTexture(r.texture)
	}
	r.texture = nil
	rglog.Logger().Debug("resource destroyed", "label", r.desc.Label)
}
