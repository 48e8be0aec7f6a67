// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package bitm

import "testing"

func TestZero(t *testing.T) {
	var m Bitm
	if m.Len() != 0 || m.Cap() != 0 || m.Rem() != 0 {
		t.Fatalf("zero Bitm: Len=%d Cap=%d Rem=%d, want 0 0 0", m.Len(), m.Cap(), m.Rem())
	}
	if _, ok := m.Search(); ok {
		t.Fatal("Search on empty map should fail")
	}
}

func TestGrowSetUnset(t *testing.T) {
	var m Bitm
	m.Grow(2)
	if m.Cap() != 128 || m.Rem() != 128 {
		t.Fatalf("after Grow(2): Cap=%d Rem=%d, want 128 128", m.Cap(), m.Rem())
	}

	for i := 0; i < 70; i++ {
		idx, ok := m.Search()
		if !ok || idx != i {
			t.Fatalf("Search() = %d, %v; want %d, true", idx, ok, i)
		}
		m.Set(idx)
	}
	if m.Len() != 70 {
		t.Fatalf("Len() = %d, want 70", m.Len())
	}

	m.Set(5) // already set
	if m.Len() != 70 {
		t.Fatalf("double Set changed Len to %d", m.Len())
	}

	m.Unset(3)
	if m.IsSet(3) {
		t.Fatal("bit 3 still set after Unset")
	}
	if idx, _ := m.Search(); idx != 3 {
		t.Fatalf("Search() = %d after Unset(3), want 3", idx)
	}

	m.Clear()
	if m.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", m.Len())
	}
}

func TestSearchFull(t *testing.T) {
	var m Bitm
	m.Grow(1)
	for i := 0; i < 64; i++ {
		m.Set(i)
	}
	if _, ok := m.Search(); ok {
		t.Fatal("Search on full map should fail")
	}
}
