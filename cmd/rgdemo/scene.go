// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/command"
	"github.com/gogpu/rendergraph/constbuf"
	"github.com/gogpu/rendergraph/pipeline"
	"github.com/gogpu/rendergraph/renderer"
	"github.com/gogpu/rendergraph/resource"
	"github.com/gogpu/rendergraph/shader"
)

const (
	frameConstantsSize = 96 // Frame struct in common.wgsl
	particleCount      = 4096
	shadowSize         = 1024
	shadowCascades     = 4
)

// scene is a deferred renderer: G-buffer, shadow map, lighting, tonemap,
// with a compute particle update on the compute queue.
type scene struct {
	r *renderer.Renderer

	gbuffer   *pipeline.State
	lighting  *pipeline.State
	tonemap   *pipeline.State
	particles *pipeline.State
}

func source(path, entry string, stage shader.Stage, macros ...shader.Macro) shader.Source {
	return shader.Source{Path: path, Entry: entry, Stage: stage, Macros: macros}
}

func newScene(r *renderer.Renderer) (*scene, error) {
	s := &scene{r: r}
	pc := r.Pipelines()
	bbFormat := r.SwapChain().BackBuffer(0).Desc().Format

	if err := r.Shaders().Prewarm([]shader.Source{
		source("gbuffer.wgsl", "vs_main", shader.StageVertex),
		source("particles.wgsl", "cs_main", shader.StageCompute),
	}); err != nil {
		return nil, err
	}

	fs := source("gbuffer.wgsl", "fs_main", shader.StageFragment)
	var err error
	s.gbuffer, err = pc.Render(&pipeline.RenderDesc{
		Label:    "gbuffer",
		Vertex:   source("gbuffer.wgsl", "vs_main", shader.StageVertex),
		Fragment: &fs,
		State: pipeline.RenderState{
			Cull:         gputypes.CullModeBack,
			Depth:        pipeline.DepthState{Test: true, Write: true, Compare: gputypes.CompareFunctionLess},
			ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA16Float},
			DepthFormat:  gputypes.TextureFormatDepth24PlusStencil8,
		},
	})
	if err != nil {
		return nil, err
	}

	s.lighting, err = s.fullscreen("lighting", gputypes.TextureFormatRGBA16Float, "0.25", pipeline.BlendAdditive)
	if err != nil {
		return nil, err
	}
	s.tonemap, err = s.fullscreen("tonemap", bbFormat, "1.0", nil)
	if err != nil {
		return nil, err
	}

	s.particles, err = pc.Compute(&pipeline.ComputeDesc{
		Label:  "particles",
		Shader: source("particles.wgsl", "cs_main", shader.StageCompute),
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *scene) fullscreen(label string, format gputypes.TextureFormat, ambient string, blend *pipeline.BlendState) (*pipeline.State, error) {
	macro := shader.Macro{Name: "AMBIENT", Value: ambient}
	fs := source("fullscreen.wgsl", "fs_main", shader.StageFragment, macro)
	return s.r.Pipelines().Render(&pipeline.RenderDesc{
		Label:    label,
		Vertex:   source("fullscreen.wgsl", "vs_main", shader.StageVertex, macro),
		Fragment: &fs,
		State: pipeline.RenderState{
			Blend:        blend,
			ColorFormats: []gputypes.TextureFormat{format},
		},
	})
}

// constants fills the Frame uniform block.
func constants(frame uint64, width, height uint32) []byte {
	b := make([]byte, frameConstantsSize)
	t := float32(frame) / 60
	aspect := float32(width) / float32(max(height, 1))
	// Column-major scale matrix squashing x by the aspect ratio.
	m := [16]float32{1 / aspect, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	for i, v := range m {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	eye := [4]float32{float32(math.Sin(float64(t))) * 4, 2, float32(math.Cos(float64(t))) * 4, 1}
	for i, v := range eye {
		binary.LittleEndian.PutUint32(b[64+i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(b[80:], math.Float32bits(t))
	binary.LittleEndian.PutUint32(b[84:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(b[88:], particleCount)
	return b
}

// bindFrame creates a bind group holding cb for group 0 of st. It is
// destroyed when the frame retires.
func (s *scene) bindFrame(f *renderer.Frame, st *pipeline.State, cb *constbuf.ConstantBuffer) (hal.BindGroup, error) {
	device := s.r.Device()
	bg, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s frame%d", st.Label, f.Index()),
		Layout:  st.BindGroupLayout(0),
		Entries: []gputypes.BindGroupEntry{{Binding: 0, Resource: cb.Binding()}},
	})
	if err != nil {
		return nil, err
	}
	f.Retire(func() { device.DestroyBindGroup(bg) })
	return bg, nil
}

// cascadeSplits computes practical shadow cascade split distances.
func cascadeSplits(near, far float64) [shadowCascades]float64 {
	var splits [shadowCascades]float64
	for i := range splits {
		p := float64(i+1) / shadowCascades
		log := near * math.Pow(far/near, p)
		lin := near + (far-near)*p
		splits[i] = 0.75*log + 0.25*lin
	}
	return splits
}

// record adds the frame's passes to its graphs.
func (s *scene) record(f *renderer.Frame) error {
	bb := f.BackBuffer()
	w, h := bb.Desc().Width, bb.Desc().Height

	cb := f.ConstantBuffer(frameConstantsSize)
	cb.Write(constants(f.Index(), w, h))

	groups := make(map[*pipeline.State]hal.BindGroup, 4)
	for _, st := range []*pipeline.State{s.gbuffer, s.lighting, s.tonemap, s.particles} {
		bg, err := s.bindFrame(f, st, cb)
		if err != nil {
			return err
		}
		groups[st] = bg
	}

	target := func(vt resource.ViewType, width, height uint32, format gputypes.TextureFormat, clear resource.ClearValue) *resource.Handle {
		return f.Transient(resource.HandleDesc{ViewType: vt, Width: width, Height: height, Format: format, Clear: clear})
	}
	black := resource.ClearValue{Color: gputypes.Color{A: 1}}
	albedo := target(resource.ViewRenderTarget, w, h, gputypes.TextureFormatRGBA8Unorm, black)
	normal := target(resource.ViewRenderTarget, w, h, gputypes.TextureFormatRGBA16Float, black)
	depth := target(resource.ViewDepthStencil, w, h, gputypes.TextureFormatDepth24PlusStencil8, resource.ClearValue{Depth: 1})
	shadow := target(resource.ViewDepthStencil, shadowSize, shadowSize, gputypes.TextureFormatDepth32Float, resource.ClearValue{Depth: 1})
	hdr := target(resource.ViewRenderTarget, w, h, gputypes.TextureFormatRGBA16Float, black)
	particles := target(resource.ViewUnorderedAccess, particleCount, 1, gputypes.TextureFormatRGBA32Float, resource.ClearValue{})

	f.Compute().AddPass("particles", func(b *rendergraph.Builder) rendergraph.PassFunc {
		b.Write(particles, resource.UnorderedAccess, rendergraph.InitDiscard)
		x, y, z := s.particles.Workgroups(particleCount, 1, 1)
		return func(l *command.List) {
			l.ComputePass("particles", func(pass hal.ComputePassEncoder) {
				l.Dispatch(pass, command.DispatchCall{
					Pipeline:   s.particles.Compute,
					BindGroups: []hal.BindGroup{groups[s.particles]},
					X:          x, Y: y, Z: z,
				})
			})
		}
	})

	g := f.Graph()
	g.AddPass("gbuffer", func(b *rendergraph.Builder) rendergraph.PassFunc {
		b.Write(albedo, resource.RenderTarget, rendergraph.InitClear)
		b.Write(normal, resource.RenderTarget, rendergraph.InitClear)
		b.Write(depth, resource.DepthWrite, rendergraph.InitClear)
		return func(l *command.List) {
			l.RenderPass(&hal.RenderPassDescriptor{
				Label: "gbuffer",
				ColorAttachments: []hal.RenderPassColorAttachment{
					loadStore(albedo.Resource()),
					loadStore(normal.Resource()),
				},
				DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
					View:           depth.Resource().DSV().TextureView,
					DepthLoadOp:    gputypes.LoadOpLoad,
					DepthStoreOp:   gputypes.StoreOpStore,
					StencilLoadOp:  gputypes.LoadOpLoad,
					StencilStoreOp: gputypes.StoreOpStore,
				},
			}, func(rp hal.RenderPassEncoder) {
				l.Draw(rp, command.DrawCall{Pipeline: s.gbuffer.Render, BindGroups: []hal.BindGroup{groups[s.gbuffer]}, Count: 3})
			})
		}
	})

	// Cascade setup runs off the submission goroutine; the shadow pass is
	// built once it signals.
	shadows := g.AddBarrier("shadows")
	shadows.AddPass("shadow", func(b *rendergraph.Builder) rendergraph.PassFunc {
		b.Write(shadow, resource.DepthWrite, rendergraph.InitClear)
		return nil
	})
	var splits [shadowCascades]float64
	go func() {
		splits = cascadeSplits(0.1, 200)
		shadows.Signal()
	}()

	g.AddPass("lighting", func(b *rendergraph.Builder) rendergraph.PassFunc {
		b.Read(albedo, resource.PixelShaderResource)
		b.Read(normal, resource.PixelShaderResource)
		b.Read(depth, resource.DepthRead)
		b.Read(shadow, resource.PixelShaderResource)
		b.Write(hdr, resource.RenderTarget, rendergraph.InitDiscard)
		cascades := splits
		return func(l *command.List) {
			l.RenderPass(&hal.RenderPassDescriptor{
				Label:            fmt.Sprintf("lighting (far cascade %.1f)", cascades[shadowCascades-1]),
				ColorAttachments: []hal.RenderPassColorAttachment{loadStore(hdr.Resource())},
			}, func(rp hal.RenderPassEncoder) {
				l.Draw(rp, command.DrawCall{Pipeline: s.lighting.Render, BindGroups: []hal.BindGroup{groups[s.lighting]}, Count: 3})
			})
		}
	})

	g.AddPass("tonemap", func(b *rendergraph.Builder) rendergraph.PassFunc {
		b.Read(hdr, resource.PixelShaderResource)
		b.Read(particles, resource.PixelShaderResource)
		b.WriteResource(bb, resource.RenderTarget, resource.AllSubresources, rendergraph.InitNone)
		return func(l *command.List) {
			l.RenderPass(&hal.RenderPassDescriptor{
				Label:            "tonemap",
				ColorAttachments: []hal.RenderPassColorAttachment{loadStore(bb)},
			}, func(rp hal.RenderPassEncoder) {
				l.Draw(rp, command.DrawCall{Pipeline: s.tonemap.Render, BindGroups: []hal.BindGroup{groups[s.tonemap]}, Count: 3})
			})
		}
	})
	return nil
}

func loadStore(r *resource.Resource) hal.RenderPassColorAttachment {
	return hal.RenderPassColorAttachment{
		View:    r.RTV().TextureView,
		LoadOp:  gputypes.LoadOpLoad,
		StoreOp: gputypes.StoreOpStore,
	}
}
