// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"encoding/binary"
	"hash"
	"hash/fnv"

	"github.com/gogpu/gputypes"
)

// BlendComponent describes how one channel group is blended.
type BlendComponent struct {
	SrcFactor gputypes.BlendFactor
	DstFactor gputypes.BlendFactor
	Operation gputypes.BlendOperation
}

// BlendState is the color blend configuration of every render target.
// A nil *BlendState writes the source unblended.
type BlendState struct {
	Color BlendComponent
	Alpha BlendComponent
}

// Common blend states.
var (
	BlendAlpha = &BlendState{
		Color: BlendComponent{gputypes.BlendFactorSrcAlpha, gputypes.BlendFactorOneMinusSrcAlpha, gputypes.BlendOperationAdd},
		Alpha: BlendComponent{gputypes.BlendFactorOne, gputypes.BlendFactorOneMinusSrcAlpha, gputypes.BlendOperationAdd},
	}
	BlendAdditive = &BlendState{
		Color: BlendComponent{gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationAdd},
		Alpha: BlendComponent{gputypes.BlendFactorOne, gputypes.BlendFactorOne, gputypes.BlendOperationAdd},
	}
)

func (b *BlendState) hal() *gputypes.BlendState {
	if b == nil {
		return nil
	}
	return &gputypes.BlendState{
		Color: gputypes.BlendComponent{SrcFactor: b.Color.SrcFactor, DstFactor: b.Color.DstFactor, Operation: b.Color.Operation},
		Alpha: gputypes.BlendComponent{SrcFactor: b.Alpha.SrcFactor, DstFactor: b.Alpha.DstFactor, Operation: b.Alpha.Operation},
	}
}

// DepthState configures the depth test. The zero value disables it.
type DepthState struct {
	Test    bool
	Write   bool
	Compare gputypes.CompareFunction
}

// RenderState is the fixed-function state of a graphics pipeline.
type RenderState struct {
	Blend    *BlendState
	Cull     gputypes.CullMode
	Topology gputypes.PrimitiveTopology
	Depth    DepthState

	// InputLayout describes the vertex buffers; empty for pipelines that
	// generate vertices in the shader.
	InputLayout []gputypes.VertexBufferLayout

	ColorFormats []gputypes.TextureFormat
	// DepthFormat is TextureFormatUndefined when there is no depth target.
	DepthFormat gputypes.TextureFormat
	SampleCount uint32
}

// Hash returns an FNV-1a hash of every field that affects the pipeline.
func (s *RenderState) Hash() uint64 {
	h := fnv.New64a()

	if s.Blend != nil {
		hashWriteBool(h, true)
		hashWriteUint32(h, uint32(s.Blend.Color.SrcFactor))
		hashWriteUint32(h, uint32(s.Blend.Color.DstFactor))
		hashWriteUint32(h, uint32(s.Blend.Color.Operation))
		hashWriteUint32(h, uint32(s.Blend.Alpha.SrcFactor))
		hashWriteUint32(h, uint32(s.Blend.Alpha.DstFactor))
		hashWriteUint32(h, uint32(s.Blend.Alpha.Operation))
	} else {
		hashWriteBool(h, false)
	}

	hashWriteUint32(h, uint32(s.Cull))
	hashWriteUint32(h, uint32(s.Topology))

	hashWriteBool(h, s.Depth.Test)
	hashWriteBool(h, s.Depth.Write)
	hashWriteUint32(h, uint32(s.Depth.Compare))

	//nolint:gosec // G115: vertex buffer count is bounded by GPU limits
	hashWriteUint32(h, uint32(len(s.InputLayout)))
	for i := range s.InputLayout {
		layout := &s.InputLayout[i]
		hashWriteUint64(h, layout.ArrayStride)
		hashWriteUint32(h, uint32(layout.StepMode))
		//nolint:gosec // G115: attribute count is bounded by GPU limits
		hashWriteUint32(h, uint32(len(layout.Attributes)))
		for j := range layout.Attributes {
			attr := &layout.Attributes[j]
			hashWriteUint32(h, attr.ShaderLocation)
			hashWriteUint32(h, uint32(attr.Format))
			hashWriteUint64(h, attr.Offset)
		}
	}

	//nolint:gosec // G115: at most eight render targets
	hashWriteUint32(h, uint32(len(s.ColorFormats)))
	for _, f := range s.ColorFormats {
		hashWriteUint32(h, uint32(f))
	}
	hashWriteUint32(h, uint32(s.DepthFormat))
	hashWriteUint32(h, s.samples())

	return h.Sum64()
}

func (s *RenderState) samples() uint32 {
	if s.SampleCount == 0 {
		return 1
	}
	return s.SampleCount
}

func (s *RenderState) topology() gputypes.PrimitiveTopology {
	if s.Topology == 0 {
		return gputypes.PrimitiveTopologyTriangleList
	}
	return s.Topology
}

func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

func hashWriteUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

//nolint:gosec // G115: entry point names are short
func hashWriteString(h hash.Hash64, s string) {
	hashWriteUint32(h, uint32(len(s)))
	_, _ = h.Write([]byte(s))
}

func hashWriteBool(h hash.Hash64, v bool) {
	if v {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}
}
