// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/internal/gputest"
	"github.com/gogpu/rendergraph/shader"
)

// stubCompiler emits a SPIR-V header; the noop device accepts any module.
type stubCompiler struct{ fail bool }

func (c stubCompiler) Compile(wgsl, entry string, _ shader.Stage, _ uint32) ([]byte, error) {
	if c.fail || strings.Contains(wgsl, "syntax error") {
		return nil, errors.Newf("entry %s: syntax error", entry)
	}
	return []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}, nil
}

const gbufferWGSL = `
struct Camera {
    view_proj: mat4x4<f32>,
    eye: vec3<f32>,
}
@group(0) @binding(0) var<uniform> camera: Camera;
@group(1) @binding(0) var albedo: texture_2d<f32>;
@group(1) @binding(1) var linear_sampler: sampler;

@vertex
fn vs_main(@location(0) pos: vec3<f32>) -> @builtin(position) vec4<f32> {
    return camera.view_proj * vec4<f32>(pos, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0);
}
`

const blurWGSL = `
@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var dst: texture_storage_2d<rgba32float, write>;

@compute @workgroup_size(8, 8)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
}
`

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	device, _ := gputest.NoopDevice(t)
	c := NewCache(device, shader.NewCache(shader.WithCompiler(stubCompiler{})))
	t.Cleanup(c.Destroy)
	return c
}

func gbufferDesc() *RenderDesc {
	fs := shader.Source{Text: gbufferWGSL, Entry: "fs_main", Stage: shader.StageFragment}
	return &RenderDesc{
		Label:    "gbuffer",
		Vertex:   shader.Source{Text: gbufferWGSL, Entry: "vs_main", Stage: shader.StageVertex},
		Fragment: &fs,
		State: RenderState{
			Cull:     gputypes.CullModeBack,
			Topology: gputypes.PrimitiveTopologyTriangleList,
			Depth:    DepthState{Test: true, Write: true, Compare: gputypes.CompareFunctionLess},
			InputLayout: []gputypes.VertexBufferLayout{{
				ArrayStride: 12,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes: []gputypes.VertexAttribute{
					{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
				},
			}},
			ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA32Float},
			DepthFormat:  gputypes.TextureFormatDepth24PlusStencil8,
		},
	}
}

func TestRenderStateHash(t *testing.T) {
	base := gbufferDesc().State
	tests := []struct {
		name   string
		modify func(*RenderState)
		same   bool
	}{
		{"identical", func(*RenderState) {}, true},
		{"sample count default", func(s *RenderState) { s.SampleCount = 1 }, true},
		{"blend", func(s *RenderState) { s.Blend = BlendAlpha }, false},
		{"blend kind", func(s *RenderState) { s.Blend = BlendAdditive }, false},
		{"cull", func(s *RenderState) { s.Cull = gputypes.CullModeNone }, false},
		{"depth write", func(s *RenderState) { s.Depth.Write = false }, false},
		{"color format", func(s *RenderState) { s.ColorFormats = s.ColorFormats[:1] }, false},
		{"depth format", func(s *RenderState) { s.DepthFormat = gputypes.TextureFormatUndefined }, false},
		{"stride", func(s *RenderState) {
			s.InputLayout = []gputypes.VertexBufferLayout{{ArrayStride: 16, StepMode: gputypes.VertexStepModeVertex}}
		}, false},
		{"samples", func(s *RenderState) { s.SampleCount = 4 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			s.ColorFormats = append([]gputypes.TextureFormat(nil), base.ColorFormats...)
			tt.modify(&s)
			if got := s.Hash() == base.Hash(); got != tt.same {
				t.Errorf("hash equal = %v, want %v", got, tt.same)
			}
		})
	}
}

func TestRenderReturnsSameState(t *testing.T) {
	c := newTestCache(t)
	s1, err := c.Render(gbufferDesc())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	s2, err := c.Render(gbufferDesc())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if s1 != s2 {
		t.Error("identical descriptions built two pipelines")
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Errorf("Stats() = %d hits, %d misses; want 1, 1", hits, misses)
	}
	if s1.Render == nil || s1.Compute != nil {
		t.Error("render pipeline not built")
	}
	if len(s1.BindGroupLayouts) != 2 || s1.BindGroupLayout(1) == nil || s1.BindGroupLayout(2) != nil {
		t.Errorf("bind group layouts = %d", len(s1.BindGroupLayouts))
	}
	if s1.Slot("camera") != 0 || s1.Slot("missing") != -1 {
		t.Errorf("slots camera=%d missing=%d", s1.Slot("camera"), s1.Slot("missing"))
	}

	other := gbufferDesc()
	other.State.Blend = BlendAlpha
	s3, err := c.Render(other)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if s3 == s1 {
		t.Error("different blend state shared a pipeline")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestRenderKeyedOnShader(t *testing.T) {
	c := newTestCache(t)
	a := gbufferDesc()
	b := gbufferDesc()
	b.Vertex.Macros = []shader.Macro{{Name: "SKINNED", Value: "1"}}
	sa, err := c.Render(a)
	if err != nil {
		t.Fatal(err)
	}
	sb, err := c.Render(b)
	if err != nil {
		t.Fatal(err)
	}
	if sa == sb {
		t.Error("different shader variants shared a pipeline")
	}
}

func TestDepthOnlyPipeline(t *testing.T) {
	c := newTestCache(t)
	d := gbufferDesc()
	d.Fragment = nil
	d.State.ColorFormats = nil
	s, err := c.Render(d)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if s.Render == nil {
		t.Error("depth-only pipeline not built")
	}
}

func TestComputePipeline(t *testing.T) {
	c := newTestCache(t)
	desc := &ComputeDesc{Label: "blur", Shader: shader.Source{Text: blurWGSL, Entry: "cs_main", Stage: shader.StageCompute}}
	s, err := c.Compute(desc)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if s.Compute == nil || s.Render != nil {
		t.Fatal("compute pipeline not built")
	}
	if again, _ := c.Compute(desc); again != s {
		t.Error("Compute returned a different state")
	}
	if x, y, z := s.Workgroups(1920, 1080, 1); x != 240 || y != 135 || z != 1 {
		t.Errorf("Workgroups = %d,%d,%d; want 240,135,1", x, y, z)
	}
	if x, _, _ := s.Workgroups(0, 1, 1); x != 1 {
		t.Errorf("Workgroups(0) x = %d, want 1", x)
	}
}

func TestConcurrentRender(t *testing.T) {
	c := newTestCache(t)
	var wg sync.WaitGroup
	states := make([]*State, 16)
	for i := range states {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.Render(gbufferDesc())
			if err != nil {
				t.Errorf("Render: %v", err)
			}
			states[i] = s
		}()
	}
	wg.Wait()
	for _, s := range states[1:] {
		if s != states[0] {
			t.Fatal("concurrent Render built more than one pipeline")
		}
	}
}

func TestRootCostLimit(t *testing.T) {
	c := newTestCache(t)
	var b strings.Builder
	for i := range 33 {
		fmt.Fprintf(&b, "@group(0) @binding(%d) var<uniform> u%d: vec4<f32>;\n", i, i)
	}
	b.WriteString("@compute @workgroup_size(1) fn main() {}\n")
	desc := &ComputeDesc{Label: "wide", Shader: shader.Source{Text: b.String(), Entry: "main", Stage: shader.StageCompute}}
	gputest.MustPanic(t, "root signature cost 66 exceeds 64", func() {
		_, _ = c.Compute(desc)
	})
}

func TestCompileFailurePanics(t *testing.T) {
	c := newTestCache(t)
	desc := &ComputeDesc{Shader: shader.Source{Text: "syntax error", Entry: "main", Stage: shader.StageCompute}}
	gputest.MustPanic(t, "shader compilation failed", func() {
		_, _ = c.Compute(desc)
	})
}

func TestStorageFormat(t *testing.T) {
	tests := []struct {
		typ  string
		want gputypes.TextureFormat
	}{
		{"texture_storage_2d<rgba32float, write>", gputypes.TextureFormatRGBA32Float},
		{"texture_storage_2d<r32float,read_write>", gputypes.TextureFormatR32Float},
		{"texture_storage_3d<bgra8unorm, write>", gputypes.TextureFormatBGRA8Unorm},
		{"texture_storage_2d<rgba16sint, write>", gputypes.TextureFormatRGBA8Unorm},
	}
	for _, tt := range tests {
		if got := storageFormat(tt.typ); got != tt.want {
			t.Errorf("storageFormat(%q) = %v, want %v", tt.typ, got, tt.want)
		}
	}
	if viewDimension("texture_storage_3d<bgra8unorm, write>") != gputypes.TextureViewDimension3D {
		t.Error("3d dimension not detected")
	}
}

func TestLayoutEntries(t *testing.T) {
	bindings := []shader.Binding{
		{Name: "frame", Kind: shader.UniformBuffer, Binding: 0},
		{Name: "particles", Kind: shader.StorageBuffer, Binding: 1, ReadOnly: true},
		{Name: "albedo", Kind: shader.Texture, Binding: 2, Type: "texture_2d<f32>"},
		{Name: "output", Kind: shader.StorageTexture, Binding: 3, Type: "texture_storage_2d<rgba32float, write>"},
		{Name: "linear", Kind: shader.Sampler, Binding: 4},
	}
	entries := layoutEntries(bindings, true)
	if len(entries) != len(bindings) {
		t.Fatalf("got %d entries, want %d", len(entries), len(bindings))
	}
	for i, e := range entries {
		if e.Binding != bindings[i].Binding || e.Visibility != gputypes.ShaderStageCompute {
			t.Errorf("entry %d = binding %d visibility %v", i, e.Binding, e.Visibility)
		}
	}
	if b := entries[0].Buffer; b == nil || b.Type != gputypes.BufferBindingTypeUniform {
		t.Errorf("uniform entry buffer = %+v", b)
	}
	if b := entries[1].Buffer; b == nil || b.Type != gputypes.BufferBindingTypeReadOnlyStorage {
		t.Errorf("read-only storage entry buffer = %+v", b)
	}
	if tex := entries[2].Texture; tex == nil || tex.ViewDimension != gputypes.TextureViewDimension2D {
		t.Errorf("texture entry = %+v", tex)
	}
	st := entries[3].StorageTexture
	if st == nil {
		t.Fatal("storage texture entry has no StorageTexture layout")
	}
	if st.Format != gputypes.TextureFormatRGBA32Float || st.ViewDimension != gputypes.TextureViewDimension2D {
		t.Errorf("storage texture layout = %+v", st)
	}
	if entries[3].Texture != nil || entries[3].Buffer != nil {
		t.Error("storage texture entry also set a texture or buffer layout")
	}
	if entries[4].Sampler == nil {
		t.Error("sampler entry has no Sampler layout")
	}

	if e := layoutEntries(bindings[:1], false)[0]; e.Visibility != gputypes.ShaderStageVertex|gputypes.ShaderStageFragment {
		t.Errorf("graphics visibility = %v", e.Visibility)
	}
}
