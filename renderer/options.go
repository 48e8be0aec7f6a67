// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/command"
	"github.com/gogpu/rendergraph/constbuf"
	"github.com/gogpu/rendergraph/descriptor"
	"github.com/gogpu/rendergraph/shader"
)

// Option configures a Renderer.
type Option func(*config)

type config struct {
	framesInFlight int
	workers        int
	commandLists   int
	waitSlice      time.Duration
	warnAfter      time.Duration
	constantBytes  uint64
	capacities     descriptor.Capacities
	width, height  uint32
	format         gputypes.TextureFormat
	shaderOpts     []shader.Option
	trace          *command.Trace
	swapChain      SwapChain
}

func defaultConfig() config {
	return config{
		framesInFlight: 3,
		workers:        -1,
		commandLists:   command.DefaultCommandLists,
		waitSlice:      time.Millisecond,
		warnAfter:      2 * time.Second,
		constantBytes:  constbuf.DefaultCapacity,
		width:          1280,
		height:         720,
		format:         gputypes.TextureFormatBGRA8Unorm,
	}
}

// WithFramesInFlight sets the number of back buffers, 2 or 3.
func WithFramesInFlight(n int) Option {
	return func(c *config) {
		if n == 2 || n == 3 {
			c.framesInFlight = n
		}
	}
}

// WithWorkers sets the number of recording workers. Zero records on the
// submission goroutine while it waits; a negative count uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithCommandLists sets the command lists per queue and frame.
func WithCommandLists(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.commandLists = n
		}
	}
}

// WithFenceWait sets how often a fence wait polls the GPU and how often a
// wait that keeps running is logged.
func WithFenceWait(slice, warnAfter time.Duration) Option {
	return func(c *config) {
		if slice > 0 {
			c.waitSlice = slice
		}
		if warnAfter > 0 {
			c.warnAfter = warnAfter
		}
	}
}

// WithConstantBufferSize sets the constant-buffer arena size in bytes.
func WithConstantBufferSize(n uint64) Option {
	return func(c *config) {
		if n > 0 {
			c.constantBytes = n
		}
	}
}

// WithDescriptorCapacities sets the descriptor heap sizes. Zero fields keep
// their defaults.
func WithDescriptorCapacities(caps descriptor.Capacities) Option {
	return func(c *config) { c.capacities = caps }
}

// WithSize sets the initial back-buffer size.
func WithSize(width, height uint32) Option {
	return func(c *config) {
		if width > 0 && height > 0 {
			c.width, c.height = width, height
		}
	}
}

// WithFormat sets the back-buffer format.
func WithFormat(f gputypes.TextureFormat) Option {
	return func(c *config) { c.format = f }
}

// WithShaderCache passes options to the shader cache.
func WithShaderCache(opts ...shader.Option) Option {
	return func(c *config) { c.shaderOpts = append(c.shaderOpts, opts...) }
}

// WithTrace records the barrier batches of every frame's graphs into t.
func WithTrace(t *command.Trace) Option {
	return func(c *config) { c.trace = t }
}

// WithSwapChain replaces the offscreen swap chain. The renderer takes
// ownership and destroys it on Close.
func WithSwapChain(sc SwapChain) Option {
	return func(c *config) { c.swapChain = sc }
}
