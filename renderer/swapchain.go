// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/descriptor"
	"github.com/gogpu/rendergraph/internal/rglog"
	"github.com/gogpu/rendergraph/resource"
)

// SwapChain is a ring of back buffers presented in turn.
type SwapChain interface {
	// Count returns the number of back buffers.
	Count() int
	// Current returns the index of the back buffer the next frame renders to.
	Current() int
	// BackBuffer returns back buffer i.
	BackBuffer(i int) *resource.Resource
	// Present shows the current back buffer and advances Current.
	Present() error
	// Resize recreates the back buffers. The GPU must be idle.
	Resize(width, height uint32) error
	// Destroy releases the back buffers.
	Destroy()
}

// Offscreen is a SwapChain of plain render-target textures. Presenting
// only rotates the index; it is used without a window and in tests.
type Offscreen struct {
	device hal.Device
	heaps  *descriptor.Heaps
	format gputypes.TextureFormat

	width, height uint32
	buffers       []*resource.Resource
	current       int
	presents      uint64
}

// NewOffscreen creates count back buffers of the given size and format.
// Their views come from the back-buffer RTV heap.
func NewOffscreen(device hal.Device, heaps *descriptor.Heaps, count int, width, height uint32, format gputypes.TextureFormat) (*Offscreen, error) {
	s := &Offscreen{device: device, heaps: heaps, format: format}
	s.buffers = make([]*resource.Resource, count)
	if err := s.create(width, height); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Offscreen) create(width, height uint32) error {
	for i := range s.buffers {
		r, err := resource.New(s.device, s.heaps, resource.Desc{
			Label:   fmt.Sprintf("backbuffer%d", i),
			Width:   width,
			Height:  height,
			Format:  s.format,
			Flags:   resource.AllowRenderTarget | resource.BackBuffer,
			Initial: resource.Present,
		})
		if err != nil {
			s.destroyBuffers()
			return errors.Wrapf(err, "renderer: create back buffer %d", i)
		}
		s.buffers[i] = r
	}
	s.width, s.height = width, height
	return nil
}

func (s *Offscreen) destroyBuffers() {
	for i, r := range s.buffers {
		if r != nil {
			r.Destroy()
			s.buffers[i] = nil
		}
	}
}

// Count implements SwapChain.
func (s *Offscreen) Count() int { return len(s.buffers) }

// Current implements SwapChain.
func (s *Offscreen) Current() int { return s.current }

// BackBuffer implements SwapChain.
func (s *Offscreen) BackBuffer(i int) *resource.Resource { return s.buffers[i] }

// Size returns the back-buffer size.
func (s *Offscreen) Size() (width, height uint32) { return s.width, s.height }

// Presents returns the number of Present calls.
func (s *Offscreen) Presents() uint64 { return s.presents }

// Present implements SwapChain. The back buffer must be in the Present
// state.
func (s *Offscreen) Present() error {
	bb := s.buffers[s.current]
	if st, ok := bb.Uniform(); !ok || st != resource.Present {
		return errors.Newf("renderer: %s presented in state %v", bb.Label(), bb.States())
	}
	s.presents++
	s.current = (s.current + 1) % len(s.buffers)
	return nil
}

// Resize implements SwapChain.
func (s *Offscreen) Resize(width, height uint32) error {
	if width == s.width && height == s.height {
		return nil
	}
	s.destroyBuffers()
	if err := s.create(width, height); err != nil {
		return err
	}
	s.current = 0
	rglog.Logger().Info("renderer: swap chain resized", "width", width, "height", height, "buffers", len(s.buffers))
	return nil
}

// Destroy implements SwapChain.
func (s *Offscreen) Destroy() { s.destroyBuffers() }
