// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import "testing"

const lightingWGSL = `
struct Camera {
    view_proj: mat4x4<f32>,
    position: vec3<f32>,
    exposure: f32,
    jitter: vec2<f32>,
}

struct Light {
    color: vec3<f32>,
    intensity: f32,
}

struct Lights {
    count: u32,
    items: array<Light, 4>,
}

@group(0) @binding(0) var<uniform> camera: Camera;
@group(0) @binding(1) var<uniform> lights: Lights;
@group(1) @binding(0) var albedo: texture_2d<f32>;
@group(1) @binding(1) var normals: texture_2d<f32>;
@group(1) @binding(2) var linear_sampler: sampler;
@group(2) @binding(0) var<storage, read_write> histogram: array<atomic<u32>>;
@group(2) @binding(1) var output: texture_storage_2d<rgba8unorm, write>;

// @group(3) @binding(0) var<uniform> commented_out: Camera;

@compute @workgroup_size(8, 8)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {}
`

func TestReflectBindings(t *testing.T) {
	r := Reflect(lightingWGSL)
	if len(r.Bindings) != 7 {
		t.Fatalf("got %d bindings, want 7: %+v", len(r.Bindings), r.Bindings)
	}

	tests := []struct {
		name string
		kind BindingKind
		slot int
	}{
		{"camera", UniformBuffer, 0},
		{"lights", UniformBuffer, 1},
		{"albedo", Texture, 2},
		{"normals", Texture, 2},
		{"linear_sampler", Sampler, 3},
		{"histogram", StorageBuffer, 4},
		{"output", StorageTexture, 4},
	}
	for _, tt := range tests {
		b, ok := r.Lookup(tt.name)
		if !ok {
			t.Errorf("%s not reflected", tt.name)
			continue
		}
		if b.Kind != tt.kind || b.Slot != tt.slot {
			t.Errorf("%s = kind %s slot %d, want %s slot %d", tt.name, b.Kind, b.Slot, tt.kind, tt.slot)
		}
	}

	if got := r.RootCost(); got != 2*2+3 {
		t.Errorf("RootCost() = %d, want 7", got)
	}
	if r.WorkgroupSize != [3]uint32{8, 8, 1} {
		t.Errorf("WorkgroupSize = %v", r.WorkgroupSize)
	}
	if eps := r.EntryPoints[StageCompute]; len(eps) != 1 || eps[0] != "cs_main" {
		t.Errorf("compute entry points = %v", eps)
	}
}

func TestReflectMemberLayout(t *testing.T) {
	r := Reflect(lightingWGSL)
	tests := []struct {
		buffer, member string
		want           Member
	}{
		{"camera", "view_proj", Member{Offset: 0, Size: 64}},
		{"camera", "position", Member{Offset: 64, Size: 12}},
		{"camera", "exposure", Member{Offset: 76, Size: 4}},
		{"camera", "jitter", Member{Offset: 80, Size: 8}},
		{"lights", "count", Member{Offset: 0, Size: 4}},
		{"lights", "items", Member{Offset: 16, Size: 64}},
	}
	for _, tt := range tests {
		got, ok := r.Member(tt.buffer, tt.member)
		if !ok || got != tt.want {
			t.Errorf("Member(%s, %s) = %+v, %v, want %+v", tt.buffer, tt.member, got, ok, tt.want)
		}
	}
	cam, _ := r.Lookup("camera")
	if cam.Size != 96 {
		t.Errorf("camera size = %d, want 96", cam.Size)
	}
	lights, _ := r.Lookup("lights")
	if lights.Size != 80 {
		t.Errorf("lights size = %d, want 80", lights.Size)
	}
}

func TestReflectUnknownNames(t *testing.T) {
	r := Reflect(lightingWGSL)
	if s := r.Slot("missing"); s != -1 {
		t.Errorf("Slot(missing) = %d, want -1", s)
	}
	if _, ok := r.Member("camera", "fov"); ok {
		t.Error("Member(camera, fov) reported present")
	}
	if _, ok := r.Member("missing", "x"); ok {
		t.Error("Member on unknown buffer reported present")
	}
}

func TestMergeDeduplicates(t *testing.T) {
	vs := Reflect(`
@group(0) @binding(0) var<uniform> camera: mat4x4<f32>;
@vertex fn vs_main() -> @builtin(position) vec4<f32> { return vec4<f32>(); }`)
	fs := Reflect(`
@group(0) @binding(0) var<uniform> camera: mat4x4<f32>;
@group(1) @binding(0) var tex: texture_2d<f32>;
@fragment fn fs_main() -> @location(0) vec4<f32> { return vec4<f32>(); }`)
	m := Merge(vs, fs)
	if len(m.Bindings) != 2 {
		t.Fatalf("merged bindings = %d, want 2", len(m.Bindings))
	}
	if m.RootCost() != 3 {
		t.Errorf("RootCost() = %d, want 3", m.RootCost())
	}
	if len(m.EntryPoints[StageVertex]) != 1 || len(m.EntryPoints[StageFragment]) != 1 {
		t.Errorf("entry points = %v", m.EntryPoints)
	}
	if got := m.Groups(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("Groups() = %v", got)
	}
}
