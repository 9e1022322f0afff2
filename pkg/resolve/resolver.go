package resolve

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/nugo-cli/nugo/pkg/assembly"
	"github.com/nugo-cli/nugo/pkg/directive"
	"github.com/nugo-cli/nugo/pkg/nuget"
	"github.com/nugo-cli/nugo/pkg/observability"
	"github.com/nugo-cli/nugo/pkg/pkgcache"
)

const workers = 8

// Process-lifetime shared state: duplicate requests for the same package
// (keyed by id@version, cache root, and target) share a single
// download+extract+select pass, and completed results are memoized so
// later calls bypass the semaphore entirely.
var (
	inflight singleflight.Group
	memoized sync.Map // work key -> *pkgResult
)

// pkgResult is the per-package outcome shared through the in-flight table.
type pkgResult struct {
	Dir        string
	Assemblies []string
	Deps       []nuget.Dependency
	Cached     bool
}

// Resolver turns package refs into a flat list of assembly paths by
// walking the transitive dependency closure, populating the on-disk cache,
// and selecting target-compatible binaries.
type Resolver struct {
	registry Registry
	store    *pkgcache.Store
	opts     Options
	gate     *semaphore.Weighted
}

// NewResolver creates a Resolver over a registry client and package store.
func NewResolver(registry Registry, store *pkgcache.Store, opts Options) *Resolver {
	opts = opts.WithDefaults()
	return &Resolver{
		registry: registry,
		store:    store,
		opts:     opts,
		gate:     opts.gate(),
	}
}

// Resolve walks refs and their transitive dependencies breadth-first and
// returns the selected assembly paths in package discovery order.
//
// Per-package failures (version binding, download, extraction) are logged
// and the package is skipped; the call as a whole only fails on
// cancellation. A package whose manifest cannot be read still contributes
// its assemblies, with its dependency subtree pruned.
func (r *Resolver) Resolve(ctx context.Context, refs []directive.Ref) ([]string, error) {
	runID := uuid.NewString()
	start := time.Now()
	observability.Resolver().OnResolveStart(ctx, runID, r.opts.Target, len(refs))

	seeds := r.bindSeeds(ctx, refs)
	c := &crawler{
		ctx:     ctx,
		r:       r,
		visited: make(map[string]bool),
		byKey:   make(map[string]*pkgResult),
		jobs:    make(chan Coord, workers*2),
		results: make(chan walkResult, workers*2),
	}
	paths, err := c.run(seeds)

	packages := len(c.order)
	observability.Resolver().OnResolveComplete(ctx, runID, packages, len(paths), time.Since(start), err)
	return paths, err
}

// bindSeeds fixes versionless refs to the latest published version. Refs
// that cannot be bound are dropped with a logged error; resolution
// continues with the rest.
func (r *Resolver) bindSeeds(ctx context.Context, refs []directive.Ref) []Coord {
	seeds := make([]Coord, 0, len(refs))
	for _, ref := range refs {
		version := ref.Version
		if version == "" {
			v, err := r.registry.LatestVersion(ctx, ref.ID)
			if err != nil {
				r.opts.Logger("version resolution failed: %s: %v", ref.ID, err)
				continue
			}
			version = v
		}
		seeds = append(seeds, Coord{ID: ref.ID, Version: version})
	}
	return seeds
}

// fetch produces the package's result, sharing work with concurrent
// callers and reusing memoized results from earlier calls.
func (r *Resolver) fetch(ctx context.Context, coord Coord) (*pkgResult, error) {
	key := coord.Key() + "|" + r.store.Root() + "|" + r.opts.Target

	observability.Resolver().OnPackageStart(ctx, coord.ID, coord.Version)
	start := time.Now()

	if v, ok := memoized.Load(key); ok {
		res := v.(*pkgResult)
		observability.Resolver().OnPackageComplete(ctx, coord.ID, coord.Version, len(res.Assemblies), true, time.Since(start), nil)
		return res, nil
	}

	v, err, _ := inflight.Do(key, func() (any, error) {
		if err := r.gate.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer r.gate.Release(1)

		// Work that holds a slot runs to completion even if the caller is
		// cancelled, so its result can still be memoized.
		workCtx := context.WithoutCancel(ctx)
		dir, cached, err := r.store.Ensure(workCtx, r.registry, coord.ID, coord.Version)
		if err != nil {
			return nil, err
		}

		deps, err := nuget.DependenciesFromDir(dir, r.opts.Target)
		if err != nil {
			// Unreadable manifests prune the subtree but keep the package.
			r.opts.Logger("manifest unreadable: %s: %v", coord, err)
			deps = nil
		}
		deps = r.bindDeps(workCtx, deps)

		res := &pkgResult{
			Dir:        dir,
			Assemblies: assembly.Select(dir, r.opts.Target),
			Deps:       deps,
			Cached:     cached,
		}
		memoized.Store(key, res)
		return res, nil
	})
	if err != nil {
		observability.Resolver().OnPackageComplete(ctx, coord.ID, coord.Version, 0, false, time.Since(start), err)
		return nil, err
	}

	res := v.(*pkgResult)
	observability.Resolver().OnPackageComplete(ctx, coord.ID, coord.Version, len(res.Assemblies), res.Cached, time.Since(start), nil)
	return res, nil
}

// bindDeps fixes dependencies declared without a version to the latest
// published version. Unresolvable dependencies are dropped with a logged
// error.
func (r *Resolver) bindDeps(ctx context.Context, deps []nuget.Dependency) []nuget.Dependency {
	bound := deps[:0]
	for _, d := range deps {
		if d.Version == "" {
			v, err := r.registry.LatestVersion(ctx, d.ID)
			if err != nil {
				r.opts.Logger("version resolution failed: %s: %v", d.ID, err)
				continue
			}
			d.Version = v
		}
		bound = append(bound, d)
	}
	return bound
}

// walkResult carries one package's outcome back to the collector.
type walkResult struct {
	coord Coord
	res   *pkgResult
	err   error
}

// crawler drives the breadth-first walk: a worker pool fetches packages
// while the collector tracks discovery order and enqueues newly seen
// dependencies.
type crawler struct {
	ctx context.Context
	r   *Resolver

	jobs    chan Coord
	results chan walkResult
	wg      sync.WaitGroup

	mu      sync.Mutex
	visited map[string]bool
	order   []Coord
	byKey   map[string]*pkgResult

	pending int64
}

func (c *crawler) run(seeds []Coord) ([]string, error) {
	for range workers {
		c.wg.Add(1)
		go c.worker()
	}

	queued := false
	for _, s := range seeds {
		queued = c.enqueue(s) || queued
	}

	var err error
	if queued {
		err = c.collect()
	}

	close(c.jobs)
	c.wg.Wait()

	if err != nil {
		return nil, err
	}
	return c.assemblies(), nil
}

func (c *crawler) worker() {
	defer c.wg.Done()
	for coord := range c.jobs {
		if c.ctx.Err() != nil {
			atomic.AddInt64(&c.pending, -1)
			continue
		}
		res, err := c.r.fetch(c.ctx, coord)
		c.results <- walkResult{coord: coord, res: res, err: err}
	}
}

// enqueue schedules a coord exactly once, recording discovery order.
func (c *crawler) enqueue(coord Coord) bool {
	key := coord.Key()

	c.mu.Lock()
	if c.visited[key] {
		c.mu.Unlock()
		return false
	}
	c.visited[key] = true
	c.order = append(c.order, coord)
	c.mu.Unlock()

	atomic.AddInt64(&c.pending, 1)

	go func() { c.jobs <- coord }()
	return true
}

func (c *crawler) collect() error {
	for {
		select {
		case res := <-c.results:
			c.handle(res)
			if atomic.AddInt64(&c.pending, -1) == 0 {
				return nil
			}
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}

func (c *crawler) handle(w walkResult) {
	if w.err != nil {
		c.r.opts.Logger("resolve failed: %s: %v", w.coord, w.err)
		return
	}

	c.mu.Lock()
	c.byKey[w.coord.Key()] = w.res
	c.mu.Unlock()

	for _, d := range w.res.Deps {
		c.enqueue(Coord{ID: d.ID, Version: d.Version})
	}
}

// assemblies flattens per-package selections in discovery order,
// deduplicating paths.
func (c *crawler) assemblies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool)
	var paths []string
	for _, coord := range c.order {
		res := c.byKey[coord.Key()]
		if res == nil {
			continue
		}
		for _, p := range res.Assemblies {
			if seen[p] {
				continue
			}
			seen[p] = true
			paths = append(paths, p)
		}
	}
	return paths
}
