// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package renderer owns a GPU device and drives frames through render
// graphs.
//
// A Renderer holds everything that lives as long as the device: the
// graphics and compute command queues, the descriptor heaps, the transient
// view pool, the constant-buffer arena, the shader and pipeline caches and
// the swap chain. Each frame is bracketed by BeginFrame and EndFrame.
// BeginFrame waits until the GPU has finished the last frame that used the
// same back buffer and runs that frame's deferred releases; EndFrame
// records the frame's graphs, submits compute work and then graphics work,
// and presents.
package renderer

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/command"
	"github.com/gogpu/rendergraph/constbuf"
	"github.com/gogpu/rendergraph/descriptor"
	"github.com/gogpu/rendergraph/internal/parallel"
	"github.com/gogpu/rendergraph/internal/rglog"
	"github.com/gogpu/rendergraph/internal/threadcheck"
	"github.com/gogpu/rendergraph/pipeline"
	"github.com/gogpu/rendergraph/resource"
	"github.com/gogpu/rendergraph/shader"
)

// slot tracks the GPU work of the last frame that rendered to one back
// buffer.
type slot struct {
	graphicsFence uint64
	computeFence  uint64
	retired       []func()
}

// Renderer owns the device-lifetime GPU state. Its methods belong to the
// submission goroutine unless noted.
type Renderer struct {
	cfg config

	device hal.Device
	queue  hal.Queue
	// release tears down a device the renderer opened itself.
	release func()

	exec      *parallel.Executor
	graphics  *command.Queue
	compute   *command.Queue
	heaps     *descriptor.Heaps
	views     *resource.ViewAllocator
	constants *constbuf.Allocator
	shaders   *shader.Cache
	pipelines *pipeline.Cache
	swap      SwapChain

	slots  []slot
	frame  *Frame
	frames uint64
	guard  threadcheck.Guard
	closed bool
}

// New creates a renderer over an open device. The caller keeps ownership
// of the device and queue.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Renderer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Renderer{cfg: cfg, device: device, queue: queue}
	if err := r.init(); err != nil {
		r.teardown()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) init() error {
	cfg := &r.cfg
	r.exec = parallel.NewExecutor(cfg.workers)
	r.heaps = descriptor.NewHeaps(cfg.capacities)

	queueOpts := func(label string) []command.Option {
		return []command.Option{
			command.WithLabel(label),
			command.WithCommandLists(cfg.commandLists),
			command.WithFenceWait(cfg.waitSlice, cfg.warnAfter),
			command.WithDescriptorHeap(r.heaps.Heap(descriptor.CBVSRVUAV)),
		}
	}
	var err error
	if r.graphics, err = command.NewQueue(r.device, r.queue, r.exec, queueOpts("graphics")...); err != nil {
		return err
	}
	// The HAL exposes one queue per device; the compute queue submits to
	// it with its own fence and command lists.
	if r.compute, err = command.NewQueue(r.device, r.queue, r.exec, queueOpts("compute")...); err != nil {
		return err
	}

	r.views = resource.NewViewAllocator(r.device, r.heaps)
	if r.constants, err = constbuf.NewAllocator(r.device, r.queue, cfg.constantBytes); err != nil {
		return err
	}
	r.shaders = shader.NewCache(cfg.shaderOpts...)
	r.pipelines = pipeline.NewCache(r.device, r.shaders)

	if cfg.swapChain != nil {
		r.swap = cfg.swapChain
	} else {
		r.swap, err = NewOffscreen(r.device, r.heaps, cfg.framesInFlight, cfg.width, cfg.height, cfg.format)
		if err != nil {
			return err
		}
	}
	r.slots = make([]slot, r.swap.Count())
	rglog.Logger().Info("renderer: created",
		"frames_in_flight", r.swap.Count(), "workers", cfg.workers,
		"command_lists", cfg.commandLists, "constant_bytes", r.constants.Capacity())
	return nil
}

// Device returns the HAL device.
func (r *Renderer) Device() hal.Device { return r.device }

// Graphics returns the graphics queue.
func (r *Renderer) Graphics() *command.Queue { return r.graphics }

// ComputeQueue returns the compute queue.
func (r *Renderer) ComputeQueue() *command.Queue { return r.compute }

// Heaps returns the descriptor heaps.
func (r *Renderer) Heaps() *descriptor.Heaps { return r.heaps }

// Views returns the transient view pool.
func (r *Renderer) Views() *resource.ViewAllocator { return r.views }

// Constants returns the constant-buffer arena.
func (r *Renderer) Constants() *constbuf.Allocator { return r.constants }

// Shaders returns the shader cache.
func (r *Renderer) Shaders() *shader.Cache { return r.shaders }

// Pipelines returns the pipeline cache.
func (r *Renderer) Pipelines() *pipeline.Cache { return r.pipelines }

// SwapChain returns the swap chain.
func (r *Renderer) SwapChain() SwapChain { return r.swap }

// Executor returns the executor that runs recording tasks.
func (r *Renderer) Executor() *parallel.Executor { return r.exec }

// Frames returns the number of completed frames.
func (r *Renderer) Frames() uint64 { return r.frames }

// BeginFrame starts a frame. It waits until the GPU has finished the last
// frame that rendered to the current back buffer and runs that frame's
// retired functions. BeginFrame and EndFrame must alternate.
func (r *Renderer) BeginFrame() *Frame {
	r.guard.Enter("renderer.BeginFrame")
	defer r.guard.Exit()
	if r.closed {
		panic(errors.AssertionFailedf("renderer: BeginFrame after Close"))
	}
	if r.frame != nil {
		panic(errors.AssertionFailedf("renderer: BeginFrame called twice without EndFrame (frame %d)", r.frame.index))
	}

	i := r.swap.Current()
	s := &r.slots[i]
	r.waitIdle(s.graphicsFence, s.computeFence)
	runRetired(s)

	name := fmt.Sprintf("frame%d", r.frames)
	f := &Frame{
		r:     r,
		index: r.frames,
		slot:  i,
		graph: rendergraph.New(r.graphics, rendergraph.WithName(name), rendergraph.WithTrace(r.cfg.trace)),
		comp:  rendergraph.New(r.compute, rendergraph.WithName(name+"/compute"), rendergraph.WithTrace(r.cfg.trace)),
	}
	r.frame = f
	return f
}

// FrameStats describes one submitted frame.
type FrameStats struct {
	Frame         uint64
	BackBuffer    int
	Graphics      rendergraph.Stats
	Compute       rendergraph.Stats
	GraphicsFence uint64
	ComputeFence  uint64
}

// EndFrame records the frame's graphs, submits compute work, then
// graphics work waiting on it, and presents the back buffer.
func (r *Renderer) EndFrame() FrameStats {
	r.guard.Enter("renderer.EndFrame")
	defer r.guard.Exit()
	f := r.frame
	if f == nil {
		panic(errors.AssertionFailedf("renderer: EndFrame called without BeginFrame"))
	}

	r.constants.Flush()

	f.comp.Execute()
	computeFence := r.compute.Execute()
	if len(f.comp.Passes()) > 0 {
		r.graphics.Wait(r.compute)
	}

	bb := f.BackBuffer()
	f.graph.AddPass("present", func(b *rendergraph.Builder) rendergraph.PassFunc {
		b.ReadResource(bb, resource.Present, resource.AllSubresources)
		return nil
	})
	f.graph.Execute()
	graphicsFence := r.graphics.Execute()

	if err := r.swap.Present(); err != nil {
		panic(errors.Wrap(err, "renderer: present"))
	}

	s := &r.slots[f.slot]
	s.graphicsFence = graphicsFence
	s.computeFence = computeFence
	s.retired = append(s.retired, f.retired...)

	stats := FrameStats{
		Frame:         f.index,
		BackBuffer:    f.slot,
		Graphics:      f.graph.Stats(),
		Compute:       f.comp.Stats(),
		GraphicsFence: graphicsFence,
		ComputeFence:  computeFence,
	}
	r.frame = nil
	r.frames++
	rglog.Logger().Debug("renderer: frame submitted",
		"frame", stats.Frame, "backbuffer", stats.BackBuffer,
		"passes", stats.Graphics.Passes+stats.Compute.Passes,
		"transitions", stats.Graphics.Transitions+stats.Compute.Transitions,
		"elided", stats.Graphics.Elided+stats.Compute.Elided)
	return stats
}

// waitIdle waits for both queues to reach their values.
func (r *Renderer) waitIdle(graphics, compute uint64) {
	var g errgroup.Group
	g.Go(func() error { return catch(func() { r.graphics.WaitForValue(graphics) }) })
	g.Go(func() error { return catch(func() { r.compute.WaitForValue(compute) }) })
	if err := g.Wait(); err != nil {
		panic(err)
	}
}

// catch converts a panic in fn into an error.
func catch(fn func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			if e, ok := v.(error); ok {
				err = e
			} else {
				err = errors.Newf("%v", v)
			}
		}
	}()
	fn()
	return nil
}

func runRetired(s *slot) {
	for _, fn := range s.retired {
		fn()
	}
	s.retired = s.retired[:0]
}

// Resize flushes the GPU and recreates the back buffers. It must not be
// called between BeginFrame and EndFrame.
func (r *Renderer) Resize(width, height uint32) error {
	r.guard.Enter("renderer.Resize")
	defer r.guard.Exit()
	if r.frame != nil {
		panic(errors.AssertionFailedf("renderer: Resize during frame %d", r.frame.index))
	}
	if err := r.flush(context.Background()); err != nil {
		return err
	}
	for i := range r.slots {
		runRetired(&r.slots[i])
	}
	if err := r.swap.Resize(width, height); err != nil {
		return err
	}
	r.slots = make([]slot, r.swap.Count())
	return nil
}

// flush drains both queues concurrently.
func (r *Renderer) flush(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return catch(r.graphics.Flush) })
	g.Go(func() error { return catch(r.compute.Flush) })
	return errors.Wrap(g.Wait(), "renderer: flush")
}

// Close flushes both queues and releases everything the renderer owns.
// An open frame is abandoned.
func (r *Renderer) Close() error {
	if r.closed {
		return nil
	}
	r.guard.Enter("renderer.Close")
	defer r.guard.Exit()
	r.closed = true

	var err error
	if r.frame != nil {
		r.exec.Wait()
		r.frame = nil
	}
	if r.graphics != nil && r.compute != nil {
		err = r.flush(context.Background())
	}
	for i := range r.slots {
		runRetired(&r.slots[i])
	}
	r.teardown()
	rglog.Logger().Info("renderer: closed", "frames", r.frames)
	return err
}

// teardown destroys whatever init created, in reverse order.
func (r *Renderer) teardown() {
	if r.swap != nil {
		r.swap.Destroy()
	}
	if r.pipelines != nil {
		r.pipelines.Destroy()
	}
	if r.constants != nil {
		r.constants.Destroy()
	}
	if r.views != nil {
		r.views.Close()
	}
	if r.compute != nil {
		r.compute.Destroy()
	}
	if r.graphics != nil {
		r.graphics.Destroy()
	}
	if r.exec != nil {
		r.exec.Close()
	}
	if r.release != nil {
		r.release()
		r.release = nil
	}
}
