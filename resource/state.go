// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// State is the tracked usage state of one subresource.
type State uint8

const (
	Common State = iota
	RenderTarget
	UnorderedAccess
	DepthWrite
	DepthRead
	NonPixelShaderResource
	PixelShaderResource
	CopyDest
	CopySource
	Present
	GenericRead
)

var stateNames = [...]string{
	Common:                 "COMMON",
	RenderTarget:           "RENDER_TARGET",
	UnorderedAccess:        "UNORDERED_ACCESS",
	DepthWrite:             "DEPTH_WRITE",
	DepthRead:              "DEPTH_READ",
	NonPixelShaderResource: "NON_PIXEL_SHADER_RESOURCE",
	PixelShaderResource:    "PIXEL_SHADER_RESOURCE",
	CopyDest:               "COPY_DEST",
	CopySource:             "COPY_SOURCE",
	Present:                "PRESENT",
	GenericRead:            "GENERIC_READ",
}

// String returns the state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Usage maps the state to the texture usage the HAL transitions between.
// Common and Present have no usage bits.
func (s State) Usage() gputypes.TextureUsage {
	switch s {
	case RenderTarget, DepthWrite, DepthRead:
		return gputypes.TextureUsageRenderAttachment
	case UnorderedAccess:
		return gputypes.TextureUsageStorageBinding
	case NonPixelShaderResource, PixelShaderResource:
		return gputypes.TextureUsageTextureBinding
	case CopyDest:
		return gputypes.TextureUsageCopyDst
	case CopySource:
		return gputypes.TextureUsageCopySrc
	case GenericRead:
		return gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc
	default:
		return 0
	}
}

// IsWrite reports whether the state permits GPU writes.
func (s State) IsWrite() bool {
	switch s {
	case RenderTarget, UnorderedAccess, DepthWrite, CopyDest:
		return true
	}
	return false
}
