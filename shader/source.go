// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader compiles WGSL shaders and caches the results.
//
// Sources are preprocessed (#include resolution against search paths,
// macro substitution), compiled to SPIR-V with naga and reflected for
// their resource bindings. Compiled binaries are cached in memory and on
// disk; a disk entry records every include's content hash and is discarded
// when any include has changed since it was written.
package shader

import (
	"encoding/binary"
	"hash/fnv"
	"slices"
	"strings"
)

// Stage is a pipeline stage a shader entry point runs in.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// Compiler flags. They are part of the cache key and passed to the Compiler.
// Naga honours FlagDebug only.
const (
	FlagDebug uint32 = 1 << iota
	FlagSkipOptimization
)

// Macro is a preprocessor definition substituted for identifiers.
type Macro struct {
	Name  string
	Value string
}

// Source identifies one shader entry point.
//
// Text is used when set; otherwise the file at Path is read through the
// include search paths.
type Source struct {
	Path   string
	Text   string
	Entry  string
	Stage  Stage
	Macros []Macro
	Flags  uint32
}

// Key hashes everything that selects a compiled binary except include
// contents, which are validated separately.
func (s Source) Key() uint64 {
	h := fnv.New64a()
	writeString := func(v string) {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(v))) //nolint:gosec // source sizes fit
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(v))
	}
	writeString(s.Path)
	writeString(s.Text)
	writeString(s.Entry)
	var tail [5]byte
	tail[0] = byte(s.Stage)
	binary.LittleEndian.PutUint32(tail[1:], s.Flags)
	_, _ = h.Write(tail[:])

	macros := slices.Clone(s.Macros)
	slices.SortFunc(macros, func(a, b Macro) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Value, b.Value)
	})
	for _, m := range macros {
		writeString(m.Name)
		writeString(m.Value)
	}
	return h.Sum64()
}

// Label is a short human-readable name for logs and HAL labels.
func (s Source) Label() string {
	name := s.Path
	if name == "" {
		name = "inline"
	}
	return name + ":" + s.Entry
}
