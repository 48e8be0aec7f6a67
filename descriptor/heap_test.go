// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

import (
	"sync"
	"testing"

	"github.com/gogpu/rendergraph/internal/gputest"
)

func TestHeapAllocFree(t *testing.T) {
	h := NewHeap(RTV, 3)
	a, b, c := h.Alloc(), h.Alloc(), h.Alloc()
	if a.Index != 0 || b.Index != 1 || c.Index != 2 {
		t.Fatalf("indices = %d %d %d, want 0 1 2", a.Index, b.Index, c.Index)
	}
	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}

	h.Free(b)
	if d := h.Alloc(); d.Index != 1 {
		t.Fatalf("Alloc after Free(1) = %d, want 1", d.Index)
	}
}

func TestHeapExhaustionIsFatal(t *testing.T) {
	h := NewHeap(DSV, 2)
	h.Alloc()
	h.Alloc()
	gputest.MustPanic(t, "DSV heap exhausted", func() { h.Alloc() })
}

func TestHeapCapacityNotMultipleOf64(t *testing.T) {
	h := NewHeap(CBVSRVUAV, 65)
	for range 65 {
		h.Alloc()
	}
	gputest.MustPanic(t, "exhausted", func() { h.Alloc() })
}

func TestHeapDoubleFree(t *testing.T) {
	h := NewHeap(RTV, 4)
	d := h.Alloc()
	h.Free(d)
	gputest.MustPanic(t, "double free", func() { h.Free(d) })
}

func TestHeapForeignHandle(t *testing.T) {
	rtv := NewHeap(RTV, 4)
	dsv := NewHeap(DSV, 4)
	d := dsv.Alloc()
	gputest.MustPanic(t, "does not belong", func() { rtv.View(d) })
}

func TestHeapConcurrentAlloc(t *testing.T) {
	h := NewHeap(CBVSRVUAV, 1024)
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int32]bool)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 128 {
				d := h.Alloc()
				mu.Lock()
				if seen[d.Index] {
					t.Errorf("slot %d handed out twice", d.Index)
				}
				seen[d.Index] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if h.Len() != 1024 {
		t.Fatalf("Len() = %d, want 1024", h.Len())
	}
}

func TestNewHeapsDefaults(t *testing.T) {
	hs := NewHeaps(Capacities{RTV: 8})
	if hs.Heap(RTV).Cap() != 8 {
		t.Errorf("RTV cap = %d, want 8", hs.Heap(RTV).Cap())
	}
	if hs.Heap(DSV).Cap() != DefaultCapacities.DSV {
		t.Errorf("DSV cap = %d, want %d", hs.Heap(DSV).Cap(), DefaultCapacities.DSV)
	}
	d := hs.Heap(DSV).Alloc()
	hs.Free(d)
	if hs.Heap(DSV).Len() != 0 {
		t.Errorf("DSV Len() = %d after Free, want 0", hs.Heap(DSV).Len())
	}
}
