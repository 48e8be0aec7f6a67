// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/shader"
)

// layoutEntries converts the reflected bindings of one bind group into
// layout entries. Every binding is visible to all stages of the pipeline.
func layoutEntries(bindings []shader.Binding, compute bool) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(bindings))
	for _, b := range bindings {
		e := gputypes.BindGroupLayoutEntry{Binding: b.Binding}
		if compute {
			e.Visibility = gputypes.ShaderStageCompute
		} else {
			e.Visibility = gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
		}
		switch b.Kind {
		case shader.UniformBuffer:
			e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		case shader.StorageBuffer:
			if b.ReadOnly {
				e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
			} else {
				e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
			}
		case shader.Texture:
			e.Texture = &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: viewDimension(b.Type),
			}
		case shader.StorageTexture:
			e.StorageTexture = &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessReadWrite,
				Format:        storageFormat(b.Type),
				ViewDimension: viewDimension(b.Type),
			}
		case shader.Sampler:
			e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
		}
		entries = append(entries, e)
	}
	return entries
}

// viewDimension reads the dimension from a WGSL texture type name such as
// texture_2d<f32> or texture_storage_3d<rgba8unorm, write>.
func viewDimension(typ string) gputypes.TextureViewDimension {
	switch {
	case strings.Contains(typ, "_1d"):
		return gputypes.TextureViewDimension1D
	case strings.Contains(typ, "_3d"):
		return gputypes.TextureViewDimension3D
	default:
		return gputypes.TextureViewDimension2D
	}
}

var storageFormats = map[string]gputypes.TextureFormat{
	"rgba8unorm":  gputypes.TextureFormatRGBA8Unorm,
	"bgra8unorm":  gputypes.TextureFormatBGRA8Unorm,
	"r32float":    gputypes.TextureFormatR32Float,
	"rg32float":   gputypes.TextureFormatRG32Float,
	"rgba32float": gputypes.TextureFormatRGBA32Float,
}

func storageFormat(typ string) gputypes.TextureFormat {
	_, args, ok := strings.Cut(typ, "<")
	if !ok {
		return gputypes.TextureFormatRGBA8Unorm
	}
	name, _, _ := strings.Cut(args, ",")
	if f, ok := storageFormats[strings.TrimSpace(strings.TrimSuffix(name, ">"))]; ok {
		return f
	}
	return gputypes.TextureFormatRGBA8Unorm
}
