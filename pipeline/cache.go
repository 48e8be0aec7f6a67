// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipeline creates and caches pipeline state objects.
//
// A pipeline is identified by its fixed-function state and the hashes of
// its compiled shaders. The Cache builds each distinct pipeline once
// (shader modules, bind group layouts derived from shader reflection,
// pipeline layout, pipeline) and returns the same *State for every later
// request with the same identity.
package pipeline

import (
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/internal/rglog"
	"github.com/gogpu/rendergraph/shader"
)

// RenderDesc describes a graphics pipeline.
type RenderDesc struct {
	Label  string
	Vertex shader.Source
	// Fragment is nil for depth-only pipelines.
	Fragment *shader.Source
	State    RenderState
}

// ComputeDesc describes a compute pipeline.
type ComputeDesc struct {
	Label  string
	Shader shader.Source
}

// State is a built pipeline and the layout objects bind groups are
// created against.
type State struct {
	Label string
	Key   uint64

	// Reflection is the merged reflection of every stage.
	Reflection *shader.Reflection

	// BindGroupLayouts is indexed by group number.
	BindGroupLayouts []hal.BindGroupLayout
	Layout           hal.PipelineLayout

	Render  hal.RenderPipeline
	Compute hal.ComputePipeline
}

// BindGroupLayout returns the layout of group g, or nil.
func (s *State) BindGroupLayout(g uint32) hal.BindGroupLayout {
	if int(g) >= len(s.BindGroupLayouts) {
		return nil
	}
	return s.BindGroupLayouts[g]
}

// Slot returns the root slot of a named binding, or -1.
func (s *State) Slot(name string) int { return s.Reflection.Slot(name) }

// Workgroups returns the dispatch size that covers a w×h×d domain with the
// compute shader's workgroup size.
func (s *State) Workgroups(w, h, d uint32) (x, y, z uint32) {
	ws := s.Reflection.WorkgroupSize
	div := func(n, by uint32) uint32 {
		if by == 0 {
			by = 1
		}
		return max((n+by-1)/by, 1)
	}
	return div(w, ws[0]), div(h, ws[1]), div(d, ws[2])
}

// Cache builds pipelines on demand and keeps them for its lifetime.
//
// Cache is safe for concurrent use.
type Cache struct {
	device  hal.Device
	shaders *shader.Cache

	mu      sync.RWMutex
	render  map[uint64]*State
	compute map[uint64]*State
	modules map[uint64]hal.ShaderModule

	hits, misses atomic.Uint64
}

// NewCache creates a pipeline cache compiling through shaders.
func NewCache(device hal.Device, shaders *shader.Cache) *Cache {
	return &Cache{
		device:  device,
		shaders: shaders,
		render:  make(map[uint64]*State),
		compute: make(map[uint64]*State),
		modules: make(map[uint64]hal.ShaderModule),
	}
}

// Shaders returns the shader cache the pipelines compile through.
func (c *Cache) Shaders() *shader.Cache { return c.shaders }

// Stats returns the number of cache hits and misses.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached pipelines.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.render) + len(c.compute)
}

// mustCompile compiles src. A shader that does not compile cannot be
// recovered from at draw time, so the error escalates to a panic.
func (c *Cache) mustCompile(src shader.Source) *shader.Program {
	p, err := c.shaders.Compile(src)
	if err != nil {
		panic(errors.Wrap(err, "pipeline: shader compilation failed"))
	}
	return p
}

// Render returns the graphics pipeline for desc, building it on first use.
// It panics if a shader fails to compile or the bindings exceed the root
// signature limit.
func (c *Cache) Render(desc *RenderDesc) (*State, error) {
	vs := c.mustCompile(desc.Vertex)
	var fs *shader.Program
	if desc.Fragment != nil {
		fs = c.mustCompile(*desc.Fragment)
	}

	h := fnv.New64a()
	hashWriteUint64(h, desc.State.Hash())
	hashWriteUint64(h, vs.Hash)
	hashWriteString(h, vs.Source.Entry)
	if fs != nil {
		hashWriteUint64(h, fs.Hash)
		hashWriteString(h, fs.Source.Entry)
	}
	key := h.Sum64()

	return c.getOrCreate(c.render, key, func() (*State, error) {
		return c.createRender(desc, key, vs, fs)
	})
}

// Compute returns the compute pipeline for desc, building it on first use.
func (c *Cache) Compute(desc *ComputeDesc) (*State, error) {
	cs := c.mustCompile(desc.Shader)

	h := fnv.New64a()
	hashWriteUint64(h, cs.Hash)
	hashWriteString(h, cs.Source.Entry)
	key := h.Sum64()

	return c.getOrCreate(c.compute, key, func() (*State, error) {
		return c.createCompute(desc, key, cs)
	})
}

func (c *Cache) getOrCreate(m map[uint64]*State, key uint64, create func() (*State, error)) (*State, error) {
	c.mu.RLock()
	if s, ok := m[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return s, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := m[key]; ok {
		c.hits.Add(1)
		return s, nil
	}
	s, err := create()
	if err != nil {
		return nil, err
	}
	m[key] = s
	c.misses.Add(1)
	return s, nil
}

// module returns the shader module of p. Called with c.mu held.
func (c *Cache) module(p *shader.Program) (hal.ShaderModule, error) {
	if m, ok := c.modules[p.Hash]; ok {
		return m, nil
	}
	m, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  p.Source.Label(),
		Source: hal.ShaderSource{SPIRV: p.SPIRV()},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline: create shader module %s", p.Source.Label())
	}
	c.modules[p.Hash] = m
	return m, nil
}

// layouts builds one bind group layout per group up to the highest used
// and the pipeline layout over them. Called with c.mu held.
func (c *Cache) layouts(label string, refl *shader.Reflection, compute bool) ([]hal.BindGroupLayout, hal.PipelineLayout, error) {
	if cost := refl.RootCost(); cost > shader.MaxRootCost {
		panic(errors.AssertionFailedf("pipeline %q: root signature cost %d exceeds %d", label, cost, shader.MaxRootCost))
	}

	groups := refl.Groups()
	var n uint32
	if len(groups) > 0 {
		n = groups[len(groups)-1] + 1
	}
	bgls := make([]hal.BindGroupLayout, n)
	for g := range n {
		var bindings []shader.Binding
		for _, b := range refl.Bindings {
			if b.Group == g {
				bindings = append(bindings, b)
			}
		}
		bgl, err := c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_bgl%d", label, g),
			Entries: layoutEntries(bindings, compute),
		})
		if err != nil {
			c.destroyLayouts(bgls[:g])
			return nil, nil, errors.Wrapf(err, "pipeline %q: create bind group layout %d", label, g)
		}
		bgls[g] = bgl
	}

	pl, err := c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pl",
		BindGroupLayouts: bgls,
	})
	if err != nil {
		c.destroyLayouts(bgls)
		return nil, nil, errors.Wrapf(err, "pipeline %q: create pipeline layout", label)
	}
	return bgls, pl, nil
}

func (c *Cache) destroyLayouts(bgls []hal.BindGroupLayout) {
	for _, bgl := range bgls {
		if bgl != nil {
			c.device.DestroyBindGroupLayout(bgl)
		}
	}
}

func (c *Cache) createRender(desc *RenderDesc, key uint64, vs, fs *shader.Program) (*State, error) {
	label := desc.Label
	if label == "" {
		label = fmt.Sprintf("render_%016x", key)
	}
	refl := vs.Reflection
	if fs != nil {
		refl = shader.Merge(vs.Reflection, fs.Reflection)
	}
	bgls, pl, err := c.layouts(label, refl, false)
	if err != nil {
		return nil, err
	}

	vm, err := c.module(vs)
	if err != nil {
		return nil, err
	}
	st := &desc.State
	pd := &hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: pl,
		Vertex: hal.VertexState{
			Module:     vm,
			EntryPoint: vs.Source.Entry,
			Buffers:    st.InputLayout,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: st.topology(),
			CullMode: st.Cull,
		},
		Multisample: gputypes.MultisampleState{
			Count: st.samples(),
			Mask:  0xFFFFFFFF,
		},
	}
	if fs != nil {
		fm, err := c.module(fs)
		if err != nil {
			return nil, err
		}
		targets := make([]gputypes.ColorTargetState, len(st.ColorFormats))
		for i, f := range st.ColorFormats {
			targets[i] = gputypes.ColorTargetState{
				Format:    f,
				Blend:     st.Blend.hal(),
				WriteMask: gputypes.ColorWriteMaskAll,
			}
		}
		pd.Fragment = &hal.FragmentState{
			Module:     fm,
			EntryPoint: fs.Source.Entry,
			Targets:    targets,
		}
	}
	if st.DepthFormat != gputypes.TextureFormatUndefined {
		compare := st.Depth.Compare
		if !st.Depth.Test {
			compare = gputypes.CompareFunctionAlways
		}
		keep := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		pd.DepthStencil = &hal.DepthStencilState{
			Format:            st.DepthFormat,
			DepthWriteEnabled: st.Depth.Write,
			DepthCompare:      compare,
			StencilFront:      keep,
			StencilBack:       keep,
			StencilReadMask:   0xFF,
			StencilWriteMask:  0xFF,
		}
	}

	rp, err := c.device.CreateRenderPipeline(pd)
	if err != nil {
		c.device.DestroyPipelineLayout(pl)
		c.destroyLayouts(bgls)
		return nil, errors.Wrapf(err, "pipeline %q: create render pipeline", label)
	}
	rglog.Logger().Debug("pipeline: render pipeline created",
		"label", label, "groups", len(bgls), "targets", len(st.ColorFormats), "root_cost", refl.RootCost())
	return &State{Label: label, Key: key, Reflection: refl, BindGroupLayouts: bgls, Layout: pl, Render: rp}, nil
}

func (c *Cache) createCompute(desc *ComputeDesc, key uint64, cs *shader.Program) (*State, error) {
	label := desc.Label
	if label == "" {
		label = fmt.Sprintf("compute_%016x", key)
	}
	bgls, pl, err := c.layouts(label, cs.Reflection, true)
	if err != nil {
		return nil, err
	}
	m, err := c.module(cs)
	if err != nil {
		return nil, err
	}
	cp, err := c.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  label,
		Layout: pl,
		Compute: hal.ComputeState{
			Module:     m,
			EntryPoint: cs.Source.Entry,
		},
	})
	if err != nil {
		c.device.DestroyPipelineLayout(pl)
		c.destroyLayouts(bgls)
		return nil, errors.Wrapf(err, "pipeline %q: create compute pipeline", label)
	}
	rglog.Logger().Debug("pipeline: compute pipeline created",
		"label", label, "groups", len(bgls), "workgroup", cs.Reflection.WorkgroupSize)
	return &State{Label: label, Key: key, Reflection: cs.Reflection, BindGroupLayouts: bgls, Layout: pl, Compute: cp}, nil
}

// Destroy releases every pipeline and shader module. The cache is empty
// and usable afterwards.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range []map[uint64]*State{c.render, c.compute} {
		keys := make([]uint64, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			s := m[k]
			if s.Render != nil {
				c.device.DestroyRenderPipeline(s.Render)
			}
			if s.Compute != nil {
				c.device.DestroyComputePipeline(s.Compute)
			}
			c.device.DestroyPipelineLayout(s.Layout)
			c.destroyLayouts(s.BindGroupLayouts)
		}
	}
	for _, m := range c.modules {
		c.device.DestroyShaderModule(m)
	}
	c.render = make(map[uint64]*State)
	c.compute = make(map[uint64]*State)
	c.modules = make(map[uint64]hal.ShaderModule)
}
