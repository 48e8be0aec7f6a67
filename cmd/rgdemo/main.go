// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command rgdemo renders a deferred scene through the render graph and
// logs per-frame graph statistics.
//
// Run it from the repository root so the shader search path resolves:
//
//	go run ./cmd/rgdemo -frames 120 -backend noop -v
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/rendergraph"
	"github.com/gogpu/rendergraph/command"
	"github.com/gogpu/rendergraph/renderer"
	"github.com/gogpu/rendergraph/shader"
)

func main() {
	var (
		frames   = flag.Int("frames", 120, "number of frames to render")
		backend  = flag.String("backend", "noop", "HAL backend: noop or vulkan")
		workers  = flag.Int("workers", -1, "recording workers (0 records inline, -1 uses GOMAXPROCS)")
		inFlight = flag.Int("frames-in-flight", 3, "back buffers in the swap chain (2 or 3)")
		width    = flag.Int("width", 1280, "back buffer width")
		height   = flag.Int("height", 720, "back buffer height")
		shaders  = flag.String("shaders", "cmd/rgdemo/shaders", "shader search path")
		cacheDir = flag.String("cache", "", "on-disk shader cache directory")
		trace    = flag.Bool("trace", false, "print the barrier trace of the last frame")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	rendergraph.SetLogger(logger)

	shaderOpts := []shader.Option{shader.WithSearchPaths(*shaders)}
	if *cacheDir != "" {
		shaderOpts = append(shaderOpts, shader.WithCacheDir(*cacheDir))
	}
	var tr *command.Trace
	if *trace {
		tr = &command.Trace{}
	}
	opts := []renderer.Option{
		renderer.WithFramesInFlight(*inFlight),
		renderer.WithWorkers(*workers),
		renderer.WithSize(uint32(*width), uint32(*height)), //nolint:gosec // flag values
		renderer.WithShaderCache(shaderOpts...),
		renderer.WithTrace(tr),
	}

	if err := run(*backend, *frames, tr, logger, opts); err != nil {
		logger.Error("rgdemo failed", "error", err)
		os.Exit(1)
	}
}

func open(backend string, opts []renderer.Option) (*renderer.Renderer, error) {
	switch backend {
	case "noop":
		return renderer.OpenAPI(noop.API{}, opts...)
	case "vulkan":
		return renderer.Open(gputypes.BackendVulkan, opts...)
	default:
		return nil, errors.Newf("unknown backend %q", backend)
	}
}

func run(backend string, frames int, tr *command.Trace, logger *slog.Logger, opts []renderer.Option) (err error) {
	r, err := open(backend, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	s, err := newScene(r)
	if err != nil {
		return errors.Wrap(err, "build scene")
	}

	start := time.Now()
	for i := 0; i < frames; i++ {
		if tr != nil {
			tr.Reset()
		}
		f := r.BeginFrame()
		if err := s.record(f); err != nil {
			r.EndFrame()
			return errors.Wrapf(err, "frame %d", i)
		}
		st := r.EndFrame()
		logger.Debug("frame",
			"index", st.Frame,
			"backbuffer", st.BackBuffer,
			"passes", st.Graphics.Passes+st.Compute.Passes,
			"transitions", st.Graphics.Transitions+st.Compute.Transitions,
			"elided", st.Graphics.Elided+st.Compute.Elided,
			"clears", st.Graphics.Clears,
			"discards", st.Graphics.Discards+st.Compute.Discards,
			"fence", st.GraphicsFence)
	}
	elapsed := time.Since(start)

	views := r.Views().Stats()
	hits, misses := r.Pipelines().Stats()
	sh := r.Shaders().Stats()
	gq := r.Graphics().Stats()
	logger.Info("done",
		"frames", frames,
		"elapsed", elapsed.Round(time.Millisecond),
		"per_frame", (elapsed / time.Duration(max(frames, 1))).Round(time.Microsecond),
		"views_created", views.Created,
		"views_reused", views.Hits,
		"pipelines", r.Pipelines().Len(),
		"pipeline_hits", hits,
		"pipeline_misses", misses,
		"shader_compiles", sh.Compiles,
		"shader_disk_hits", sh.DiskHits,
		"barrier_flushes", gq.BarrierFlushes,
		"draws", gq.Draws,
		"constant_high_water", r.Constants().HighWater())

	if tr != nil {
		fmt.Print(tr.String())
	}
	return nil
}
