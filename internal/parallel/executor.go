// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package parallel runs command-recording tasks for the render graph.
//
// The Executor is a single-producer, multi-consumer queue. The producer is
// the render-submission goroutine; consumers are either the producer itself
// (inline mode, a cooperative event loop driven by Poll and Wait) or a
// WorkerPool. Long recordings can be written as a Stepper, which advances
// one step per poll and is requeued until it reports completion, so many
// recordings interleave without a goroutine per pass.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rendergraph/internal/fence"
)

// Stepper is a resumable task. Step performs one unit of work and reports
// whether the task has finished.
type Stepper interface {
	Step() (done bool)
}

// StepFunc adapts a function to Stepper.
type StepFunc func() bool

// Step calls f.
func (f StepFunc) Step() bool { return f() }

// unit is one schedulable step. Counted units contribute to InFlight.
type unit struct {
	step    func() bool
	counted bool
}

// Executor schedules recording tasks and tracks how many are in flight.
type Executor struct {
	pool *WorkerPool // nil in inline mode

	mu    sync.Mutex
	ready []unit // inline run queue

	submitted atomic.Uint64
	completed *fence.Fence

	panicMu  sync.Mutex
	panicked error
}

// NewExecutor creates an executor. workers == 0 selects inline mode, where
// tasks only run from Poll and Wait on the owning goroutine. A negative
// count uses GOMAXPROCS workers.
func NewExecutor(workers int) *Executor {
	e := &Executor{completed: fence.New()}
	if workers != 0 {
		e.pool = NewWorkerPool(workers)
	}
	return e
}

// Inline reports whether the executor runs tasks on the polling goroutine.
func (e *Executor) Inline() bool { return e.pool == nil }

// Submit schedules fn.
func (e *Executor) Submit(fn func()) {
	e.submitted.Add(1)
	e.dispatch(unit{counted: true, step: func() bool {
		fn()
		return true
	}})
}

// Go schedules a resumable task.
func (e *Executor) Go(s Stepper) {
	e.submitted.Add(1)
	e.dispatch(unit{counted: true, step: s.Step})
}

// SubmitStrand schedules fn on s. Tasks on one strand run one at a time in
// submission order; different strands run concurrently.
func (e *Executor) SubmitStrand(s *Strand, fn func()) {
	if s == nil {
		e.Submit(fn)
		return
	}
	e.submitted.Add(1)
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	e.dispatch(unit{step: s.step})
}

// NewStrand returns a strand bound to e.
func (e *Executor) NewStrand() *Strand { return &Strand{e: e} }

// InFlight returns the number of submitted tasks that have not finished.
func (e *Executor) InFlight() int {
	return int(e.submitted.Load() - e.completed.Value())
}

// Poll runs at most one queued step in inline mode and reports whether it
// ran anything. In pooled mode it yields the processor and returns false.
func (e *Executor) Poll() bool {
	if e.pool != nil {
		runtime.Gosched()
		return false
	}
	e.mu.Lock()
	if len(e.ready) == 0 {
		e.mu.Unlock()
		return false
	}
	u := e.ready[0]
	e.ready[0] = unit{}
	e.ready = e.ready[1:]
	e.mu.Unlock()

	e.run(u)
	return true
}

// Wait blocks until every task submitted so far has completed. In inline
// mode the calling goroutine drives the queue. A panic raised by any task
// is re-raised here, on the submitter.
func (e *Executor) Wait() {
	target := e.submitted.Load()
	if e.pool == nil {
		for !e.completed.Reached(target) {
			if !e.Poll() {
				runtime.Gosched()
			}
		}
	} else {
		e.completed.Wait(target)
	}

	e.panicMu.Lock()
	err := e.panicked
	e.panicked = nil
	e.panicMu.Unlock()
	if err != nil {
		panic(err)
	}
}

// Close stops the worker pool, if any, after queued work has run.
func (e *Executor) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

func (e *Executor) dispatch(u unit) {
	if e.pool != nil {
		e.pool.Submit(func() { e.run(u) })
		return
	}
	e.mu.Lock()
	e.ready = append(e.ready, u)
	e.mu.Unlock()
}

func (e *Executor) run(u unit) {
	if !e.call(u.step) {
		e.dispatch(u)
		return
	}
	if u.counted {
		e.completed.Increment()
	}
}

// call runs one step, converting a panic into a recorded error and a
// finished step so that Wait can return and re-raise it.
func (e *Executor) call(step func() bool) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = errors.Newf("%v", r)
			}
			e.panicMu.Lock()
			if e.panicked == nil {
				e.panicked = errors.Wrap(err, "parallel: task panicked")
			}
			e.panicMu.Unlock()
			done = true
		}
	}()
	return step()
}

// Strand serializes the tasks submitted to it.
type Strand struct {
	e       *Executor
	mu      sync.Mutex
	queue   []func()
	running bool
}

// Submit is shorthand for e.SubmitStrand(s, fn).
func (s *Strand) Submit(fn func()) { s.e.SubmitStrand(s, fn) }

// step runs the oldest queued task. It reports done once the queue is empty,
// which also hands the strand back to the next SubmitStrand.
func (s *Strand) step() bool {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.running = false
		s.mu.Unlock()
		return true
	}
	fn := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.mu.Unlock()

	s.e.call(func() bool { fn(); return true })
	s.e.completed.Increment()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		s.running = false
		return true
	}
	return false
}
