// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"io/fs"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"

	"github.com/gogpu/rendergraph/internal/rglog"
)

// Program is a compiled shader entry point.
type Program struct {
	Source     Source
	Key        uint64
	Binary     []byte
	Reflection *Reflection
	Includes   []Include
	// Hash identifies the binary; pipelines key on it.
	Hash uint64
}

// SPIRV returns the binary as SPIR-V words.
func (p *Program) SPIRV() []uint32 { return Words(p.Binary) }

// CacheStats counts how Compile requests were served.
type CacheStats struct {
	Compiles   uint64
	MemoryHits uint64
	DiskHits   uint64
	Stale      uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithCacheDir enables the on-disk cache in dir.
func WithCacheDir(dir string) Option {
	return func(c *Cache) { c.dir = dir }
}

// WithSearchPaths sets the include search paths, tried in order.
func WithSearchPaths(paths ...string) Option {
	return func(c *Cache) { c.pre.SearchPaths = append(c.pre.SearchPaths, paths...) }
}

// WithCompiler replaces the naga compiler.
func WithCompiler(comp Compiler) Option {
	return func(c *Cache) { c.compiler = comp }
}

// WithPrewarmWorkers sets the number of Prewarm workers.
func WithPrewarmWorkers(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.workers = n
		}
	}
}

// Cache compiles shaders once per key and include state.
//
// Cache is safe for concurrent use; concurrent compiles of one key share a
// single compilation.
type Cache struct {
	dir      string
	pre      Preprocessor
	compiler Compiler
	workers  int

	mu  sync.Mutex
	mem map[uint64]*Program

	group singleflight.Group

	poolOnce sync.Once
	pool     worker.DynamicWorkerPool

	compiles, memHits, diskHits, stale atomic.Uint64
}

// NewCache creates a shader cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		compiler: Naga{},
		workers:  4,
		mem:      make(map[uint64]*Program),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns the request counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Compiles:   c.compiles.Load(),
		MemoryHits: c.memHits.Load(),
		DiskHits:   c.diskHits.Load(),
		Stale:      c.stale.Load(),
	}
}

// Compile returns the program for src, compiling it when no cached binary
// matches the source and the current contents of its includes.
func (c *Cache) Compile(src Source) (*Program, error) {
	key := src.Key()
	v, err, _ := c.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		return c.compile(src, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Program), nil
}

func (c *Cache) compile(src Source, key uint64) (*Program, error) {
	pre, err := c.pre.Preprocess(src)
	if err != nil {
		return nil, errors.Wrapf(err, "shader: preprocess %s", src.Label())
	}

	c.mu.Lock()
	p := c.mem[key]
	c.mu.Unlock()
	if p != nil {
		if slices.Equal(p.Includes, pre.Includes) {
			c.memHits.Add(1)
			return p, nil
		}
		c.stale.Add(1)
		rglog.Logger().Debug("shader: in-memory entry stale", "shader", src.Label())
	}

	if c.dir != "" {
		f, err := readCacheFile(c.dir, key)
		switch {
		case err == nil && f.fresh() && slices.Equal(f.Includes, pre.Includes):
			c.diskHits.Add(1)
			return c.store(newProgram(src, key, f.Binary, pre)), nil
		case err == nil:
			c.stale.Add(1)
			rglog.Logger().Debug("shader: disk entry stale", "shader", src.Label())
		case !errors.Is(err, fs.ErrNotExist):
			rglog.Logger().Warn("shader: unreadable cache entry", "shader", src.Label(), "err", err)
		}
	}

	start := time.Now()
	bin, err := c.compiler.Compile(pre.Text, src.Entry, src.Stage, src.Flags)
	if err != nil {
		return nil, errors.Wrapf(err, "shader: %s", src.Label())
	}
	c.compiles.Add(1)
	rglog.Logger().Debug("shader: compiled", "shader", src.Label(), "bytes", len(bin), "elapsed", time.Since(start))

	if c.dir != "" {
		if err := writeCacheFile(c.dir, key, &cacheFile{Includes: pre.Includes, Binary: bin}); err != nil {
			rglog.Logger().Warn("shader: cache write failed", "shader", src.Label(), "err", err)
		}
	}
	return c.store(newProgram(src, key, bin, pre)), nil
}

func newProgram(src Source, key uint64, bin []byte, pre Result) *Program {
	return &Program{
		Source:     src,
		Key:        key,
		Binary:     bin,
		Reflection: Reflect(pre.Text),
		Includes:   pre.Includes,
		Hash:       HashContent(bin) ^ key,
	}
}

func (c *Cache) store(p *Program) *Program {
	c.mu.Lock()
	c.mem[p.Key] = p
	c.mu.Unlock()
	return p
}

// Prewarm compiles srcs on a worker pool and waits for all of them.
func (c *Cache) Prewarm(srcs []Source) error {
	c.poolOnce.Do(func() {
		c.pool = worker.NewDynamicWorkerPool(c.workers, 256, time.Second)
	})

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		first  error
		failed int
	)
	for i, src := range srcs {
		wg.Add(1)
		c.pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				p, err := c.Compile(src)
				if err != nil {
					mu.Lock()
					if first == nil {
						first = err
					}
					failed++
					mu.Unlock()
				}
				return p, err
			},
		})
	}
	wg.Wait()
	if first != nil {
		return errors.Wrapf(first, "shader: %d of %d prewarm compiles failed", failed, len(srcs))
	}
	return nil
}
