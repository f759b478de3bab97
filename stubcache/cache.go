package stubcache

import (
	stderrors "errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/ilstub/errors"
	"github.com/wippyai/ilstub/handle"
	"github.com/wippyai/ilstub/stub"
)

// Allocator materializes generated stubs. handle.Table implements it.
type Allocator interface {
	NewHome(name string) (handle.Home, error)
	Allocate(home handle.Home, s *stub.Stub) (handle.Handle, error)
	Release(h handle.Handle) error
}

// BuildFunc generates the stub for a blob on a cache miss. It runs with no
// cache lock held.
type BuildFunc func() (*stub.Stub, error)

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      uint64 // served from the table
	Misses    uint64 // lookups that found nothing
	Builds    uint64 // candidates published
	Discarded uint64 // candidates released after losing a publish race
	Deleted   uint64 // entries tombstoned by Delete
	Live      int
}

// Cache deduplicates generated stubs by identity blob. At most one handle
// is published per distinct blob. Thread-safe.
type Cache struct {
	alloc  Allocator
	table  *table
	group  singleflight.Group
	name   string
	opts   Options
	stats  Stats
	home   handle.Home
	mu     sync.Mutex
	closed bool
}

// New creates an empty cache for one loading context.
func New(name string, alloc Allocator, opts Options) *Cache {
	return &Cache{
		alloc: alloc,
		table: newTable(opts.InitialCapacity),
		name:  name,
		opts:  opts,
	}
}

// Name returns the loading context name.
func (c *Cache) Name() string {
	return c.name
}

// Home returns the container stubs of this cache are allocated in,
// creating it on first use.
func (c *Cache) Home() (handle.Home, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errors.Closed(errors.PhaseCache, "stub cache "+c.name)
	}
	return c.homeLocked()
}

// homeLocked requires c.mu.
func (c *Cache) homeLocked() (handle.Home, error) {
	if c.home != 0 {
		return c.home, nil
	}
	home, err := c.alloc.NewHome(c.name)
	if err != nil {
		return 0, allocErr("stub home", err)
	}
	c.home = home
	return home, nil
}

// Lookup returns the handle published for blob.
func (c *Cache) Lookup(blob Blob) (handle.Handle, bool) {
	if blob.validate() != nil {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}
	i, ok := c.table.find(blob, hashBlob(blob))
	if !ok {
		return 0, false
	}
	return c.table.slots[i].handle, true
}

// GetOrCreate returns the handle published for blob, building and
// publishing a stub on a miss. Build and allocation failures are returned
// and leave the cache unchanged.
func (c *Cache) GetOrCreate(blob Blob, build BuildFunc) (handle.Handle, error) {
	if err := blob.validate(); err != nil {
		return 0, err
	}
	hash := hashBlob(blob)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, errors.Closed(errors.PhaseCache, "stub cache "+c.name)
	}
	if i, ok := c.table.find(blob, hash); ok {
		h := c.table.slots[i].handle
		c.stats.Hits++
		c.mu.Unlock()
		return h, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	if !c.opts.Coalesce {
		return c.create(blob, hash, build)
	}
	v, err, _ := c.group.Do(string(blob), func() (any, error) {
		return c.create(blob, hash, build)
	})
	if err != nil {
		return 0, err
	}
	return v.(handle.Handle), nil
}

func (c *Cache) create(blob Blob, hash uint32, build BuildFunc) (handle.Handle, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, errors.Closed(errors.PhaseCache, "stub cache "+c.name)
	}
	if i, ok := c.table.find(blob, hash); ok {
		h := c.table.slots[i].handle
		c.mu.Unlock()
		return h, nil
	}
	home, err := c.homeLocked()
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}

	st, err := build()
	if err != nil {
		return 0, err
	}
	if st == nil {
		return 0, errors.InvalidInput(errors.PhaseCache, "build returned no stub")
	}
	h, err := c.alloc.Allocate(home, st)
	if err != nil {
		return 0, allocErr("stub", err)
	}

	log := Logger()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = c.alloc.Release(h)
		return 0, errors.Closed(errors.PhaseCache, "stub cache "+c.name)
	}
	if i, ok := c.table.find(blob, hash); ok {
		winner := c.table.slots[i].handle
		c.stats.Discarded++
		c.mu.Unlock()

		if err := c.alloc.Release(h); err != nil {
			log.Warn("release discarded stub", zap.String("cache", c.name), zap.Uint32("handle", uint32(h)), zap.Error(err))
		}
		log.Debug("discarded duplicate stub",
			zap.String("cache", c.name),
			zap.Uint32("handle", uint32(winner)),
			zap.Uint32("discarded", uint32(h)),
		)
		return winner, nil
	}
	c.table.insert(blob.clone(), hash, h)
	c.stats.Builds++
	c.mu.Unlock()

	if ce := log.Check(zap.DebugLevel, "published stub"); ce != nil {
		ce.Write(
			zap.String("cache", c.name),
			zap.Uint32("handle", uint32(h)),
			zap.Int("blob_size", len(blob)),
			zap.Int("code_size", len(st.Code)),
			zap.String("digest", st.DigestString()),
		)
	}
	return h, nil
}

// Delete tombstones the entry for blob and returns its handle. The handle
// is not released; it belongs to the caller from here on.
func (c *Cache) Delete(blob Blob) (handle.Handle, bool) {
	if blob.validate() != nil {
		return 0, false
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, false
	}
	h, ok := c.table.remove(blob, hashBlob(blob))
	if ok {
		c.stats.Deleted++
	}
	c.mu.Unlock()

	if ok {
		Logger().Debug("deleted stub", zap.String("cache", c.name), zap.Uint32("handle", uint32(h)))
	}
	return h, ok
}

// Len returns the number of published entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.used
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Live = c.table.used
	return s
}

// Close releases every published handle. Later calls fail with a closed
// error, except Close itself which is a no-op.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var handles []handle.Handle
	c.table.each(func(s *slot) {
		handles = append(handles, s.handle)
	})
	c.table = newTable(0)
	c.mu.Unlock()

	var err error
	for _, h := range handles {
		err = multierr.Append(err, c.alloc.Release(h))
	}
	Logger().Debug("closed stub cache",
		zap.String("cache", c.name),
		zap.Int("released", len(handles)),
		zap.Error(err),
	)
	return err
}

func allocErr(what string, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Kind == errors.KindAllocation {
		return err
	}
	return errors.AllocationFailed(errors.PhaseCache, what, err)
}
