// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/internal/rglog"
)

// API creates HAL instances. hal.Backend and noop.API satisfy it.
type API interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Open creates a renderer on a device of the given backend. The renderer
// owns the device and destroys it on Close. The backend package must be
// imported so it registers with hal, for example
// _ "github.com/gogpu/wgpu/hal/vulkan".
func Open(kind gputypes.Backend, opts ...Option) (*Renderer, error) {
	backend, ok := hal.GetBackend(kind)
	if !ok {
		return nil, errors.Newf("renderer: backend %v not available", kind)
	}
	return OpenAPI(backend, opts...)
}

// OpenAPI creates a renderer on the first suitable adapter of api,
// preferring discrete and integrated GPUs.
func OpenAPI(api API, opts ...Option) (*Renderer, error) {
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, errors.Wrap(err, "renderer: create instance")
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errors.New("renderer: no GPU adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, errors.Wrap(err, "renderer: open device")
	}
	rglog.Logger().Info("renderer: device opened", "adapter", selected.Info.Name)

	release := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	r, err := New(openDev.Device, openDev.Queue, opts...)
	if err != nil {
		release()
		return nil, err
	}
	r.release = release
	return r, nil
}

// NewFromProvider creates a renderer on a device shared by provider, which
// must expose its HAL device and queue through HalDevice() any and
// HalQueue() any. The back buffers use the provider's surface format
// unless WithFormat is given.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Renderer, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, errors.New("renderer: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, errors.New("renderer: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.New("renderer: provider HalQueue is not hal.Queue")
	}
	info := provider.AdapterInfo()
	rglog.Logger().Info("renderer: using provider device", "adapter", info.Name, "type", int(info.Type))
	if f := provider.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		opts = append([]Option{WithFormat(f)}, opts...)
	}
	return New(device, queue, opts...)
}
