// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package command implements command lists and queues.
//
// A Queue owns a fixed pool of Lists. Each recording task takes one list
// for the current batch; Execute waits for every task, submits the closed
// lists in acquisition order with one HAL call and signals the queue fence.
//
// The queue fence is a per-queue counter. Each signaled value is bound to
// the HAL submission index of the call that signaled it, and a value has
// completed once the HAL queue reports that index through PollCompleted.
// Taking more lists than the pool holds before Execute is a fatal error.
package command

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendergraph/internal/parallel"
	"github.com/gogpu/rendergraph/internal/rglog"
	"github.com/gogpu/rendergraph/internal/threadcheck"
)

// Queue is a GPU submission queue with a bounded pool of command lists.
//
// AcquireCommandList, AddCommand, Execute, Signal, Flush and Wait belong to
// the submission goroutine. WaitForValue and CompletedValue may be called
// from any goroutine.
type Queue struct {
	cfg    config
	device hal.Device
	queue  hal.Queue
	exec   *parallel.Executor

	lists []*List
	used  atomic.Int32

	signaled  atomic.Uint64
	completed atomic.Uint64

	mu      sync.Mutex
	pending []submission

	waits []*Queue
	guard threadcheck.Guard

	destroyed bool
}

// submission binds a queue fence value to a HAL submission index.
type submission struct {
	value uint64
	index uint64
}

// NewQueue creates a queue over a HAL queue. Recording tasks run on exec.
func NewQueue(device hal.Device, queue hal.Queue, exec *parallel.Executor, opts ...Option) (*Queue, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if device == nil || queue == nil {
		return nil, errors.Newf("command: %s: nil HAL device or queue", cfg.label)
	}
	q := &Queue{
		cfg:    cfg,
		device: device,
		queue:  queue,
		exec:   exec,
		lists:  make([]*List, cfg.lists),
	}
	for i := range q.lists {
		q.lists[i] = newList(q, i)
	}
	rglog.Logger().Info("command queue created", "label", cfg.label, "lists", cfg.lists)
	return q, nil
}

// Label returns the queue label.
func (q *Queue) Label() string { return q.cfg.label }

// Capacity returns the number of lists available per batch.
func (q *Queue) Capacity() int { return len(q.lists) }

// InUse returns the number of lists taken in the current batch.
func (q *Queue) InUse() int { return int(q.used.Load()) }

// Executor returns the executor recording tasks run on.
func (q *Queue) Executor() *parallel.Executor { return q.exec }

// AcquireCommandList takes the next list of the pool for this batch.
func (q *Queue) AcquireCommandList() *List {
	n := int(q.used.Add(1))
	if n > len(q.lists) {
		panic(errors.AssertionFailedf("command: %s: too many render tasks (pool of %d command lists)", q.cfg.label, len(q.lists)))
	}
	return q.lists[n-1]
}

// AddCommand takes a list and schedules task to record into it. The list
// is reset, bound to the queue's descriptor heap, handed to task and closed.
// With a non-nil strand the recording runs after earlier work on the strand.
func (q *Queue) AddCommand(task func(*List), strand *parallel.Strand) *List {
	l := q.AcquireCommandList()
	record := func() {
		l.Reset()
		defer func() {
			if r := recover(); r != nil {
				l.discard()
				panic(r)
			}
		}()
		l.SetDescriptorHeap(q.cfg.heap)
		task(l)
		l.Close()
	}
	if strand != nil {
		strand.Submit(record)
	} else {
		q.exec.Submit(record)
	}
	return l
}

// Wait makes the next Execute wait until other's latest signaled value has
// completed.
func (q *Queue) Wait(other *Queue) {
	if other == q {
		return
	}
	q.waits = append(q.waits, other)
}

// Execute waits for every recording task, submits the batch's lists in
// acquisition order and signals the queue fence. It returns the fence value
// that marks the batch complete.
func (q *Queue) Execute() uint64 {
	q.guard.Enter(q.cfg.label + ".Execute")
	defer q.guard.Exit()

	q.exec.Wait()

	for _, other := range q.waits {
		other.WaitForValue(other.LastSignaled())
	}
	q.waits = q.waits[:0]

	n := min(int(q.used.Load()), len(q.lists))
	bufs := make([]hal.CommandBuffer, 0, n)
	for _, l := range q.lists[:n] {
		if !l.ready {
			panic(errors.AssertionFailedf("command: %s was acquired but never closed", l.label))
		}
		bufs = append(bufs, l.slots[l.cur].cmdBuf)
	}

	v := q.submit(bufs, "submit")
	for _, l := range q.lists[:n] {
		l.slots[l.cur].fenceValue = v
		l.ready = false
	}
	q.used.Store(0)
	rglog.Logger().Debug("command queue executed", "label", q.cfg.label, "lists", n, "fence", v)
	return v
}

// Signal advances the queue fence with an empty submission and returns the
// new value.
func (q *Queue) Signal() uint64 {
	q.guard.Enter(q.cfg.label + ".Signal")
	defer q.guard.Exit()
	return q.submit(nil, "signal")
}

// submit hands bufs to the HAL queue and binds the next fence value to the
// returned submission index.
func (q *Queue) submit(bufs []hal.CommandBuffer, op string) uint64 {
	index, err := q.queue.Submit(bufs)
	if err != nil {
		panic(errors.Wrapf(err, "command: %s: %s", q.cfg.label, op))
	}
	v := q.signaled.Load() + 1
	q.mu.Lock()
	q.pending = append(q.pending, submission{value: v, index: index})
	q.mu.Unlock()
	q.signaled.Store(v)
	return v
}

// submissionIndex returns the HAL submission index that signals v.
func (q *Queue) submissionIndex(v uint64) (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.pending {
		if s.value >= v {
			return s.index, true
		}
	}
	return 0, false
}

// retire drops the submissions up to v and publishes v as completed.
func (q *Queue) retire(v uint64) {
	q.mu.Lock()
	n := 0
	for n < len(q.pending) && q.pending[n].value <= v {
		n++
	}
	q.pending = append(q.pending[:0], q.pending[n:]...)
	q.mu.Unlock()
	for {
		c := q.completed.Load()
		if c >= v || q.completed.CompareAndSwap(c, v) {
			return
		}
	}
}

// LastSignaled returns the latest value submitted for signaling.
func (q *Queue) LastSignaled() uint64 { return q.signaled.Load() }

// CompletedValue returns the highest fence value known to have completed.
// It polls the HAL queue and never blocks.
func (q *Queue) CompletedValue() uint64 {
	done := q.queue.PollCompleted()
	var v uint64
	q.mu.Lock()
	for _, s := range q.pending {
		if s.index > done {
			break
		}
		v = s.value
	}
	q.mu.Unlock()
	if v > 0 {
		q.retire(v)
	}
	return q.completed.Load()
}

// WaitForValue blocks until the queue fence reaches v. It never gives up;
// a wait that keeps running is logged periodically.
func (q *Queue) WaitForValue(v uint64) {
	if v == 0 || q.completed.Load() >= v {
		return
	}
	if v > q.signaled.Load() {
		panic(errors.AssertionFailedf("command: %s: wait for fence value %d never signaled (last %d)", q.cfg.label, v, q.signaled.Load()))
	}
	index, ok := q.submissionIndex(v)
	if !ok {
		// Retired by a concurrent waiter.
		return
	}
	start := time.Now()
	lastWarn := start
	for q.queue.PollCompleted() < index {
		time.Sleep(q.cfg.waitSlice)
		if now := time.Now(); now.Sub(lastWarn) >= q.cfg.warnAfter {
			rglog.Logger().Warn("command queue: fence wait still pending",
				"label", q.cfg.label, "value", v, "submission", index, "elapsed", now.Sub(start))
			lastWarn = now
		}
	}
	q.retire(v)
}

// Flush signals the queue and waits until all submitted work has retired.
func (q *Queue) Flush() {
	q.WaitForValue(q.Signal())
}

// Stats sums the counters of every list in the pool.
func (q *Queue) Stats() Stats {
	var s Stats
	for _, l := range q.lists {
		s.add(l.stats)
	}
	return s
}

// Destroy flushes the queue and releases its lists.
func (q *Queue) Destroy() {
	if q.destroyed {
		return
	}
	if q.used.Load() > 0 {
		q.exec.Wait()
		q.used.Store(0)
	}
	q.Flush()
	for _, l := range q.lists {
		l.ready = false
		l.destroy()
	}
	q.destroyed = true
	rglog.Logger().Info("command queue destroyed", "label", q.cfg.label)
}
