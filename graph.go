// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/rendergraph/command"
	"github.com/gogpu/rendergraph/internal/parallel"
	"github.com/gogpu/rendergraph/internal/rglog"
	"github.com/gogpu/rendergraph/internal/threadcheck"
)

// PassFunc records a pass's commands into a command list.
type PassFunc func(*command.List)

// BuildFunc declares a pass's resource accesses and returns the function
// that records its commands. It returns nil for passes that only
// transition resources.
type BuildFunc func(*Builder) PassFunc

type pass struct {
	name    string
	build   BuildFunc
	barrier *Barrier
}

// Stats counts the work of the graph's executions.
type Stats struct {
	Passes       int
	PrepareTasks int
	BodyTasks    int
	Transitions  int
	UAVBarriers  int
	Elided       int
	Clears       int
	Discards     int
}

// Graph is an ordered list of passes recorded into one command queue.
//
// AddPass, AddBarrier, Execute and Reset belong to the submission
// goroutine; using them concurrently panics.
type Graph struct {
	opts  options
	queue *command.Queue
	exec  *parallel.Executor

	passes []pass
	stats  Stats
	guard  threadcheck.Guard
}

// New creates a graph that records into queue.
func New(queue *command.Queue, opts ...Option) *Graph {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Graph{opts: o, queue: queue, exec: queue.Executor()}
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.opts.name }

// Queue returns the queue the graph records into.
func (g *Graph) Queue() *command.Queue { return g.queue }

// AddPass appends a pass.
func (g *Graph) AddPass(name string, build BuildFunc) {
	g.guard.Enter("rendergraph.AddPass")
	defer g.guard.Exit()
	g.passes = append(g.passes, pass{name: name, build: build})
}

// AddBarrier appends a barrier pseudo-pass and returns it.
func (g *Graph) AddBarrier(name string) *Barrier {
	g.guard.Enter("rendergraph.AddBarrier")
	defer g.guard.Exit()
	b := newBarrier(name)
	g.passes = append(g.passes, pass{name: name, barrier: b})
	return b
}

// Passes returns the names of the passes in order. Barriers appear under
// their own name.
func (g *Graph) Passes() []string {
	names := make([]string, len(g.passes))
	for i, p := range g.passes {
		names[i] = p.name
	}
	return names
}

// Stats returns the counters accumulated since the last Reset.
func (g *Graph) Stats() Stats { return g.stats }

// Reset removes every pass and clears the counters.
func (g *Graph) Reset() {
	g.guard.Enter("rendergraph.Reset")
	defer g.guard.Exit()
	g.passes = g.passes[:0]
	g.stats = Stats{}
}

// Execute builds every pass in order and schedules its recording on the
// queue. Barrier transitions are resolved here, against the resources'
// current tracked states, so pass order decides the barriers. The queue's
// Execute submits the recorded lists.
func (g *Graph) Execute() {
	g.guard.Enter("rendergraph.Execute")
	defer g.guard.Exit()

	for _, p := range g.passes {
		if p.barrier == nil {
			g.executePass(p)
			continue
		}
		p.barrier.await(g.exec)
		deferred := p.barrier.snapshot()
		rglog.Logger().Debug("rendergraph: barrier reached", "graph", g.opts.name, "barrier", p.name, "passes", len(deferred))
		for _, dp := range deferred {
			g.executePass(dp)
		}
	}
}

// executePass builds p, queues its prepare task when there are barriers
// or init actions, and queues its body on the same strand.
func (g *Graph) executePass(p pass) {
	b := &Builder{pass: p.name}
	body := p.build(b)
	batch, inits, elided := b.resolve()

	g.stats.Passes++
	g.stats.Transitions += len(batch.Transitions())
	g.stats.UAVBarriers += len(batch.UAVs())
	g.stats.Elided += elided
	g.opts.trace.Record(g.opts.name+"/"+p.name, batch)

	strand := g.exec.NewStrand()
	if batch.Len() > 0 || len(inits) > 0 {
		g.stats.PrepareTasks++
		for _, in := range inits {
			if in.clear {
				g.stats.Clears++
				g.opts.trace.Event("%s/%s: clear %s", g.opts.name, p.name, in.res.Label())
			} else {
				g.stats.Discards++
				g.opts.trace.Event("%s/%s: discard %s", g.opts.name, p.name, in.res.Label())
			}
		}
		g.queue.AddCommand(func(l *command.List) {
			l.AddBarriers(batch)
			l.FlushResourceBarriers()
			for _, in := range inits {
				if in.clear {
					l.Clear(in.res, in.value)
				} else {
					l.DiscardResource(in.res)
				}
			}
		}, strand)
	}
	if body != nil {
		g.stats.BodyTasks++
		name := p.name
		g.queue.AddCommand(func(l *command.List) {
			defer func() {
				if r := recover(); r != nil {
					if err, ok := r.(error); ok {
						panic(errors.Wrapf(err, "rendergraph: pass %q", name))
					}
					panic(r)
				}
			}()
			body(l)
		}, strand)
	}
	rglog.Logger().Debug("rendergraph: pass scheduled", "graph", g.opts.name, "pass", p.name,
		"transitions", len(batch.Transitions()), "uavs", len(batch.UAVs()), "elided", elided, "inits", len(inits))
}
