// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package parallel

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func executors(t *testing.T) map[string]*Executor {
	t.Helper()
	m := map[string]*Executor{
		"inline": NewExecutor(0),
		"pooled": NewExecutor(4),
	}
	t.Cleanup(func() {
		for _, e := range m {
			e.Close()
		}
	})
	return m
}

func TestExecutorSubmitWait(t *testing.T) {
	for name, e := range executors(t) {
		t.Run(name, func(t *testing.T) {
			var n atomic.Int32
			for range 50 {
				e.Submit(func() { n.Add(1) })
			}
			e.Wait()
			if n.Load() != 50 {
				t.Errorf("ran %d tasks, want 50", n.Load())
			}
			if e.InFlight() != 0 {
				t.Errorf("InFlight() = %d after Wait, want 0", e.InFlight())
			}
		})
	}
}

func TestExecutorInlineDefersUntilPoll(t *testing.T) {
	e := NewExecutor(0)
	ran := false
	e.Submit(func() { ran = true })

	if ran {
		t.Fatal("inline task ran before Poll")
	}
	if e.InFlight() != 1 {
		t.Fatalf("InFlight() = %d, want 1", e.InFlight())
	}
	if !e.Poll() || !ran {
		t.Fatal("Poll did not run the queued task")
	}
	if e.Poll() {
		t.Fatal("Poll on empty queue reported work")
	}
}

// counter is a three-step task.
type counter struct {
	steps *[]int
	id    int
	left  int
}

func (c *counter) Step() bool {
	*c.steps = append(*c.steps, c.id)
	c.left--
	return c.left == 0
}

func TestExecutorSteppersInterleave(t *testing.T) {
	e := NewExecutor(0)
	var steps []int
	e.Go(&counter{steps: &steps, id: 1, left: 3})
	e.Go(&counter{steps: &steps, id: 2, left: 3})
	e.Wait()

	want := []int{1, 2, 1, 2, 1, 2}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("steps = %v, want %v", steps, want)
		}
	}
}

func TestExecutorStrandOrdering(t *testing.T) {
	for name, e := range executors(t) {
		t.Run(name, func(t *testing.T) {
			s := e.NewStrand()
			var mu sync.Mutex
			var got []int
			for i := range 100 {
				s.Submit(func() {
					mu.Lock()
					got = append(got, i)
					mu.Unlock()
				})
			}
			e.Wait()

			if len(got) != 100 {
				t.Fatalf("ran %d strand tasks, want 100", len(got))
			}
			for i, v := range got {
				if v != i {
					t.Fatalf("strand order broken at %d: got %d", i, v)
				}
			}
		})
	}
}

func TestExecutorPanicReraisedOnWait(t *testing.T) {
	for name, e := range executors(t) {
		t.Run(name, func(t *testing.T) {
			e.Submit(func() { panic("boom") })
			e.Submit(func() {})

			defer func() {
				r := recover()
				err, ok := r.(error)
				if !ok || !strings.Contains(err.Error(), "boom") {
					t.Fatalf("Wait panic = %v, want error containing boom", r)
				}
				if e.InFlight() != 0 {
					t.Errorf("InFlight() = %d after panic, want 0", e.InFlight())
				}
			}()
			e.Wait()
		})
	}
}
