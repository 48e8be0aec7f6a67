// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/descriptor"
	"github.com/gogpu/rendergraph/internal/gputest"
	"github.com/gogpu/rendergraph/internal/parallel"
	"github.com/gogpu/rendergraph/resource"
)

type fixture struct {
	device hal.Device
	heaps  *descriptor.Heaps
	exec   *parallel.Executor
	queue  *Queue
}

func newFixture(t *testing.T, workers int, opts ...Option) *fixture {
	t.Helper()
	device, queue := gputest.NoopDevice(t)
	exec := parallel.NewExecutor(workers)
	t.Cleanup(exec.Close)
	heaps := descriptor.NewHeaps(descriptor.Capacities{})
	opts = append([]Option{WithDescriptorHeap(heaps.Heap(descriptor.CBVSRVUAV))}, opts...)
	q, err := NewQueue(device, queue, exec, opts...)
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	t.Cleanup(q.Destroy)
	return &fixture{device: device, heaps: heaps, exec: exec, queue: q}
}

func (f *fixture) target(t *testing.T, label string) *resource.Resource {
	t.Helper()
	r, err := resource.New(f.device, f.heaps, resource.Desc{
		Label:  label,
		Width:  64,
		Height: 64,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Flags:  resource.AllowRenderTarget,
	})
	if err != nil {
		t.Fatalf("resource.New: %v", err)
	}
	t.Cleanup(r.Destroy)
	return r
}

func TestQueueCapacityTwo(t *testing.T) {
	f := newFixture(t, 0, WithCommandLists(2))
	f.queue.AddCommand(func(*List) {}, nil)
	f.queue.AddCommand(func(*List) {}, nil)
	gputest.MustPanic(t, "too many render tasks", func() {
		f.queue.AddCommand(func(*List) {}, nil)
	})
}

func TestCommandListBound(t *testing.T) {
	for _, n := range []int{1, 3, 8} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			f := newFixture(t, 0, WithCommandLists(n))
			for range n {
				f.queue.AddCommand(func(*List) {}, nil)
			}
			if f.queue.InUse() != n {
				t.Fatalf("InUse() = %d, want %d", f.queue.InUse(), n)
			}
			f.queue.Execute()
			if f.queue.InUse() != 0 {
				t.Fatalf("InUse() = %d after Execute, want 0", f.queue.InUse())
			}
			// The counter is per batch.
			for range n {
				f.queue.AddCommand(func(*List) {}, nil)
			}
			gputest.MustPanic(t, "too many render tasks", func() { f.queue.AcquireCommandList() })
		})
	}
}

func TestExecuteAcquisitionOrder(t *testing.T) {
	f := newFixture(t, 4, WithCommandLists(8))
	var got []*List
	for range 8 {
		got = append(got, f.queue.AddCommand(func(l *List) {
			if l.DescriptorHeap() == nil {
				t.Errorf("%s recorded without a descriptor heap", l.Label())
			}
		}, nil))
	}
	for i, l := range got {
		if l.Index() != i {
			t.Errorf("list %d has index %d", i, l.Index())
		}
	}
	if v := f.queue.Execute(); v != 1 {
		t.Errorf("Execute() = %d, want 1", v)
	}
	if s := f.queue.Stats(); s.Resets != 8 {
		t.Errorf("Resets = %d, want 8", s.Resets)
	}
}

func TestListCyclesAllocators(t *testing.T) {
	f := newFixture(t, 0, WithCommandLists(1))
	var slots []int
	for range NumAllocators + 2 {
		f.queue.AddCommand(func(l *List) { slots = append(slots, l.cur) }, nil)
		f.queue.Execute()
	}
	want := []int{0, 1, 2, 3, 0, 1}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slots = %v, want %v", slots, want)
		}
	}
	// Reusing slot 0 waited for the first batch.
	if f.queue.CompletedValue() < 2 {
		t.Errorf("CompletedValue() = %d, want >= 2", f.queue.CompletedValue())
	}
}

func TestBarrierCoalescing(t *testing.T) {
	f := newFixture(t, 0)
	rs := []*resource.Resource{f.target(t, "a"), f.target(t, "b"), f.target(t, "c")}

	l := f.queue.AddCommand(func(l *List) {
		for _, r := range rs {
			l.TransitionBarrier(r, resource.RenderTarget, resource.AllSubresources, false)
		}
		if l.PendingBarriers() != 3 {
			t.Errorf("PendingBarriers() = %d, want 3", l.PendingBarriers())
		}
		l.FlushResourceBarriers()
		l.FlushResourceBarriers()
	}, nil)
	f.queue.Execute()

	s := l.Stats()
	if s.BarrierFlushes != 1 || s.BarrierEntries != 3 {
		t.Errorf("flushes = %d entries = %d, want 1 and 3", s.BarrierFlushes, s.BarrierEntries)
	}
}

func TestClearAndDiscard(t *testing.T) {
	f := newFixture(t, 0)
	trace := &Trace{}
	f.queue.cfg.trace = trace
	r := f.target(t, "hdr")

	l := f.queue.AddCommand(func(l *List) {
		l.TransitionBarrier(r, resource.RenderTarget, resource.AllSubresources, false)
		l.Clear(r, resource.ClearValue{Color: gputypes.Color{R: 1, A: 1}})
		l.DiscardResource(r)
	}, nil)
	f.queue.Execute()

	s := l.Stats()
	if s.Clears != 1 || s.Discards != 1 || s.BarrierFlushes != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	events := trace.Events()
	if len(events) != 1 || events[0] != "queue/list0: hdr[*] COMMON->RENDER_TARGET" {
		t.Errorf("trace = %q", events)
	}
}

func TestStrandOrdersRecording(t *testing.T) {
	f := newFixture(t, 4)
	strand := f.exec.NewStrand()
	var seq []int
	for i := range 6 {
		f.queue.AddCommand(func(*List) { seq = append(seq, i) }, strand)
	}
	f.queue.Execute()
	for i, v := range seq {
		if v != i {
			t.Fatalf("strand order = %v", seq)
		}
	}
}

func TestTaskPanicSurfacesFromExecute(t *testing.T) {
	f := newFixture(t, 0)
	f.queue.AddCommand(func(*List) { panic("recording failed") }, nil)
	gputest.MustPanic(t, "recording failed", func() { f.queue.Execute() })
	f.queue.used.Store(0)
}

func TestFlushAndCrossQueueWait(t *testing.T) {
	f := newFixture(t, 0)
	device, halQueue := gputest.NoopDevice(t)
	compute, err := NewQueue(device, halQueue, f.exec, WithLabel("compute"))
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	t.Cleanup(compute.Destroy)

	var ran atomic.Bool
	compute.AddCommand(func(*List) { ran.Store(true) }, nil)
	cv := compute.Execute()

	f.queue.Wait(compute)
	f.queue.AddCommand(func(*List) {}, nil)
	f.queue.Execute()
	if !ran.Load() {
		t.Fatal("compute task did not run")
	}
	if compute.CompletedValue() < cv {
		t.Errorf("compute CompletedValue() = %d, want >= %d", compute.CompletedValue(), cv)
	}

	f.queue.Flush()
	if f.queue.CompletedValue() != f.queue.LastSignaled() {
		t.Errorf("after Flush completed %d != signaled %d", f.queue.CompletedValue(), f.queue.LastSignaled())
	}
}

func TestListMisuse(t *testing.T) {
	f := newFixture(t, 0)
	l := f.queue.AcquireCommandList()
	gputest.MustPanic(t, "outside Reset/Close", func() { l.Encoder() })
	l.Reset()
	gputest.MustPanic(t, "reset while recording", func() { l.Reset() })
	l.Close()
	gputest.MustPanic(t, "before its commands were executed", func() { l.Reset() })
	f.queue.Execute()
}

// lagQueue reports submissions complete only up to done.
type lagQueue struct {
	hal.Queue
	done atomic.Uint64
}

func (q *lagQueue) PollCompleted() uint64 { return q.done.Load() }

func TestFenceValuesFollowSubmissionIndex(t *testing.T) {
	device, halQueue := gputest.NoopDevice(t)
	lag := &lagQueue{Queue: halQueue}
	exec := parallel.NewExecutor(0)
	t.Cleanup(exec.Close)

	gfx, err := NewQueue(device, lag, exec, WithLabel("gfx"), WithFenceWait(time.Microsecond, 0))
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	compute, err := NewQueue(device, lag, exec, WithLabel("compute"), WithFenceWait(time.Microsecond, 0))
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	// Both queues share one HAL queue: submission indices interleave while
	// each queue's fence values stay consecutive.
	g1 := gfx.Execute()     // index 1
	c1 := compute.Execute() // index 2
	g2 := gfx.Signal()      // index 3
	if g1 != 1 || g2 != 2 || c1 != 1 {
		t.Fatalf("fence values gfx=%d,%d compute=%d, want 1,2 and 1", g1, g2, c1)
	}
	if v := gfx.CompletedValue(); v != 0 {
		t.Errorf("gfx CompletedValue() = %d before completion, want 0", v)
	}

	lag.done.Store(2)
	if v := gfx.CompletedValue(); v != 1 {
		t.Errorf("gfx CompletedValue() = %d at index 2, want 1", v)
	}
	if v := compute.CompletedValue(); v != 1 {
		t.Errorf("compute CompletedValue() = %d at index 2, want 1", v)
	}

	waited := make(chan struct{})
	go func() {
		gfx.WaitForValue(g2)
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatal("WaitForValue returned before the submission completed")
	case <-time.After(20 * time.Millisecond):
	}
	lag.done.Store(3)
	<-waited
	if v := gfx.CompletedValue(); v != 2 {
		t.Errorf("gfx CompletedValue() = %d, want 2", v)
	}

	gputest.MustPanic(t, "never signaled", func() { gfx.WaitForValue(9) })

	lag.done.Store(^uint64(0))
	gfx.Destroy()
	compute.Destroy()
}
