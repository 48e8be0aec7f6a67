// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package bitm defines a bitmap type for slot management
// (descriptor heaps and other fixed free lists).
package bitm

import (
	"math/bits"
)

const nbit = 64

// Bitm is a growable bitmap. The zero value is an empty map.
type Bitm struct {
	m   []uint64
	rem int
}

// Len returns the number of bits set in the map.
func (m *Bitm) Len() int { return len(m.m)*nbit - m.rem }

// Cap returns the number of bits in the map.
func (m *Bitm) Cap() int { return len(m.m) * nbit }

// Rem returns the number of bits not set in the map.
func (m *Bitm) Rem() int { return m.rem }

// Grow grows the map by n words (n*64 bits), all unset.
func (m *Bitm) Grow(n int) {
	if n <= 0 {
		return
	}
	m.m = append(m.m, make([]uint64, n)...)
	m.rem += n * nbit
}

// Set sets bit i.
func (m *Bitm) Set(i int) {
	w, b := i/nbit, uint(i%nbit)
	if m.m[w]&(1<<b) == 0 {
		m.m[w] |= 1 << b
		m.rem--
	}
}

// Unset clears bit i.
func (m *Bitm) Unset(i int) {
	w, b := i/nbit, uint(i%nbit)
	if m.m[w]&(1<<b) != 0 {
		m.m[w] &^= 1 << b
		m.rem++
	}
}

// IsSet reports whether bit i is set.
func (m *Bitm) IsSet(i int) bool {
	return m.m[i/nbit]&(1<<uint(i%nbit)) != 0
}

// Search returns the index of the first unset bit.
// It returns false if every bit is set.
func (m *Bitm) Search() (int, bool) {
	if m.rem == 0 {
		return 0, false
	}
	for w, x := range m.m {
		if x != ^uint64(0) {
			return w*nbit + bits.TrailingZeros64(^x), true
		}
	}
	return 0, false
}

// Clear unsets every bit.
func (m *Bitm) Clear() {
	clear(m.m)
	m.rem = len(m.m) * nbit
}
