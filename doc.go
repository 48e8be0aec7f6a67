// Package rendergraph sequences a frame's GPU work as an ordered list of
// named passes.
//
// # Overview
//
// Each pass has two phases. A build function receives a [Builder] and
// declares the resources the pass reads and writes, and the state each
// must be in. It returns a [PassFunc] that records the pass's commands.
//
//	g := rendergraph.New(queue)
//	g.AddPass("gbuffer", func(b *rendergraph.Builder) rendergraph.PassFunc {
//	    b.Write(albedo, resource.RenderTarget, rendergraph.InitClear)
//	    b.Write(depth, resource.DepthWrite, rendergraph.InitClear)
//	    return func(l *command.List) {
//	        l.RenderPass(desc, func(rp hal.RenderPassEncoder) { ... })
//	    }
//	})
//	g.AddPass("lighting", func(b *rendergraph.Builder) rendergraph.PassFunc {
//	    b.Read(albedo, resource.PixelShaderResource)
//	    ...
//	})
//	g.Execute()
//	queue.Execute()
//
// # Execution
//
// [Graph.Execute] builds the passes in the order they were added. The
// declared transitions are resolved against each resource's tracked state
// at that moment: transitions to the current state are dropped, and the
// rest become one barrier batch per pass. The batch, followed by the
// pass's clear and discard actions, is recorded as a prepare task; the
// pass body is recorded as a second task on the same strand, so it always
// follows its own prepare. Different passes record concurrently when the
// queue's executor has workers. The queue submits the lists in the order
// they were acquired, which is pass order.
//
// Because states are resolved when a pass is built, not from a dependency
// graph, the order of AddPass calls is what makes reads see writes.
//
// # Barriers
//
// [Graph.AddBarrier] inserts a synchronization point. Other goroutines add
// passes to the returned [Barrier] and call [Barrier.Signal]; Execute waits
// for the signal when it reaches the barrier and builds those passes there.
//
// # Threading
//
// A Graph and its Builders belong to one submission goroutine. Concurrent
// use is detected and panics.
//
// Pass bodies run on worker goroutines after the graph has resolved every
// later pass against the tracked states. A body must not transition a
// resource any pass of the graph declares; it may transition resources
// private to it with [command.List.TransitionBarrier]. Tracked states are
// locked per resource, so such transitions do not race with the graph.
//
// # Packages
//
//   - command: command lists, queues and barrier flushing
//   - resource: GPU textures with per-mip state tracking and the transient view pool
//   - descriptor: fixed-capacity descriptor heaps
//   - constbuf: the constant-buffer arena
//   - shader: WGSL preprocessing, compilation, reflection and the shader cache
//   - pipeline: the pipeline-state cache
//   - renderer: device ownership and frame pacing
//
// # Logging
//
// rendergraph produces no log output by default. See [SetLogger].
package rendergraph
