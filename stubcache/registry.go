package stubcache

import (
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/ilstub/errors"
)

// Registry owns one Cache per loading context. Caches are reference
// counted and closed when the last holder releases them. Thread-safe.
type Registry struct {
	alloc  Allocator
	caches map[string]*regEntry
	opts   Options
	mu     sync.Mutex
	closed bool
}

type regEntry struct {
	cache *Cache
	refs  int
}

// NewRegistry creates an empty registry whose caches allocate from alloc.
func NewRegistry(alloc Allocator, opts Options) *Registry {
	return &Registry{
		alloc:  alloc,
		caches: make(map[string]*regEntry),
		opts:   opts,
	}
}

// Acquire returns the cache for a loading context, creating it on first
// use. Each Acquire must be paired with a Release.
func (r *Registry) Acquire(name string) (*Cache, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Closed(errors.PhaseCache, "stub cache registry")
	}
	e, ok := r.caches[name]
	if !ok {
		e = &regEntry{cache: New(name, r.alloc, r.opts)}
		r.caches[name] = e
		Logger().Debug("created stub cache", zap.String("cache", name))
	}
	e.refs++
	return e.cache, nil
}

// Release drops one reference to a loading context's cache and closes it
// when none remain.
func (r *Registry) Release(name string) error {
	r.mu.Lock()
	e, ok := r.caches[name]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound(errors.PhaseCache, "stub cache", name)
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.caches, name)
	r.mu.Unlock()
	return e.cache.Close()
}

// Names returns the loading contexts with a live cache, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of live caches.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.caches)
}

// Close closes every cache regardless of outstanding references.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	caches := r.caches
	r.caches = make(map[string]*regEntry)
	r.mu.Unlock()

	var err error
	for _, e := range caches {
		err = multierr.Append(err, e.cache.Close())
	}
	return err
}
