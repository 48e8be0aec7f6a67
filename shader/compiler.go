// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
)

// Compiler turns preprocessed WGSL into a binary.
type Compiler interface {
	Compile(wgsl, entry string, stage Stage, flags uint32) ([]byte, error)
}

// Naga compiles WGSL to SPIR-V with gogpu/naga. The module carries every
// entry point; entry and stage only select it at pipeline creation.
//
// FlagDebug emits debug names into the module. naga runs no optimization
// passes, so FlagSkipOptimization only separates cache entries.
type Naga struct{}

// Compile implements Compiler.
func (Naga) Compile(wgsl, entry string, stage Stage, flags uint32) ([]byte, error) {
	opts := naga.DefaultOptions()
	opts.Debug = flags&FlagDebug != 0
	spirv, err := naga.CompileWithOptions(wgsl, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "shader: compile %s entry %q", stage, entry)
	}
	return spirv, nil
}

// Words converts a little-endian SPIR-V byte stream to 32-bit words.
func Words(spirv []byte) []uint32 {
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = uint32(spirv[i*4]) |
			uint32(spirv[i*4+1])<<8 |
			uint32(spirv[i*4+2])<<16 |
			uint32(spirv[i*4+3])<<24
	}
	return words
}
